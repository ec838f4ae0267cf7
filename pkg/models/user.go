package models

// User is the authenticated user's profile as returned by GET /users/me
type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	IsActive  bool      `json:"is_active"`
	IsAdmin   bool      `json:"is_admin"`
	CreatedAt Timestamp `json:"created_at"`
}

// Registration is the payload for POST /auth/register
type Registration struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Token is the credential exchange response
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}
