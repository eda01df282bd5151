package server

import (
	"time"

	"taskdesk/internal/domain"
	"taskdesk/internal/engine"
)

type SignupRequest struct {
	Name     string `json:"name" example:"Ada Lovelace"`
	Email    string `json:"email" example:"ada@example.com"`
	Password string `json:"password" example:"S3cret!pw"`
}

type LoginRequest struct {
	Email    string `json:"email" example:"ada@example.com"`
	Password string `json:"password" example:"S3cret!pw"`
}

// SessionResponse is the signup/login/refresh body. The refresh token
// itself travels only in the cookie.
type SessionResponse struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	AccessToken string `json:"accessToken"`
	ExpiresAt   string `json:"expiresAt"`
}

type CreateTaskRequest struct {
	Title       string  `json:"title" example:"Ship the release"`
	Description *string `json:"description,omitempty"`
}

type UpdateTaskRequest struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
}

type AssignRequest struct {
	UserIDs []string `json:"user_ids"`
}

type TaskResponse struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	CreatedBy   string   `json:"created_by"`
	AssignedTo  []string `json:"assigned_to"`
	CreatedAt   string   `json:"created_at"`
	UpdatedAt   string   `json:"updated_at"`
}

type AssigneeResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type UserResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	CreatedAt string `json:"created_at"`
}

type SetRoleRequest struct {
	Role string `json:"role" example:"admin"`
}

func sessionResponse(s engine.Session) SessionResponse {
	return SessionResponse{
		Name:        s.Identity.Name,
		Email:       s.Identity.Email,
		AccessToken: s.Access.Token,
		ExpiresAt:   s.Access.ExpiresAt.UTC().Format(time.RFC3339),
	}
}

func taskResponse(t domain.Task) TaskResponse {
	assigned := t.AssignedTo
	if assigned == nil {
		assigned = []string{}
	}
	return TaskResponse{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		CreatedBy:   t.CreatedBy,
		AssignedTo:  assigned,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

func mapTasks(items []domain.Task) []TaskResponse {
	out := make([]TaskResponse, 0, len(items))
	for _, t := range items {
		out = append(out, taskResponse(t))
	}
	return out
}

func mapAssignees(items []domain.Assignee) []AssigneeResponse {
	out := make([]AssigneeResponse, 0, len(items))
	for _, a := range items {
		out = append(out, AssigneeResponse{ID: a.ID, Name: a.Name})
	}
	return out
}

func userResponse(id domain.Identity) UserResponse {
	return UserResponse{
		ID:        id.ID,
		Name:      id.Name,
		Email:     id.Email,
		Role:      id.Role.String(),
		CreatedAt: id.CreatedAt,
	}
}

func mapUsers(items []domain.Identity) []UserResponse {
	out := make([]UserResponse, 0, len(items))
	for _, id := range items {
		out = append(out, userResponse(id))
	}
	return out
}
