package dto

import "github.com/thereayou/abstrio/internal/models"

type AuthenticateRequest struct {
	Signature string `json:"signature"`
}

type AuthenticateResponse struct {
	Message string `json:"message"`
	Token   string `json:"token"`
}

type TokenRequest struct {
	Token string `json:"token"`
}

type UpdateRequest struct {
	Token string `json:"token"`
	Name  string `json:"name"`
	Email string `json:"email" binding:"omitempty,email"`
	X     string `json:"x"`
	Image string `json:"image"`
}

type SignupRequest struct {
	Email   string `json:"email" binding:"required,email"`
	Address string `json:"address" binding:"required"`
}

type SignupResponse struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type UserResponse struct {
	User *models.User `json:"user"`
}

type UploadResponse struct {
	ImageURL string `json:"imageUrl"`
}
