package http

import (
	"time"

	"fintrack/internal/core"
	"fintrack/internal/dashboard"
	"fintrack/internal/services"
)

const filesPrefix = "/api/transactions/files/"

type transactionResponse struct {
	ID             string              `json:"id"`
	Description    string              `json:"description"`
	Amount         core.Money          `json:"amount"`
	Type           string              `json:"type"`
	Date           core.Date           `json:"date"`
	Category       string              `json:"category"`
	IsRecurring    bool                `json:"isRecurring"`
	RepeatInterval core.RepeatInterval `json:"repeatInterval,omitempty"`
	Attachment     string              `json:"attachment,omitempty"`
	AttachmentURL  string              `json:"attachmentUrl,omitempty"`
	CreatedAt      time.Time           `json:"createdAt"`
	UpdatedAt      time.Time           `json:"updatedAt"`
}

func newTransactionResponse(t core.Transaction) transactionResponse {
	resp := transactionResponse{
		ID:             t.ID,
		Description:    t.Description,
		Amount:         t.Amount,
		Type:           dashboard.Kind(t.Amount),
		Date:           t.Date,
		Category:       t.Category,
		IsRecurring:    t.IsRecurring,
		RepeatInterval: t.RepeatInterval,
		Attachment:     t.AttachmentRef,
		CreatedAt:      t.CreatedAt,
		UpdatedAt:      t.UpdatedAt,
	}
	if t.AttachmentRef != "" {
		resp.AttachmentURL = filesPrefix + t.AttachmentRef
	}
	return resp
}

func newTransactionList(txs []core.Transaction) []transactionResponse {
	out := make([]transactionResponse, 0, len(txs))
	for _, t := range txs {
		out = append(out, newTransactionResponse(t))
	}
	return out
}

type userResponse struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
	LastLogin *time.Time `json:"lastLogin,omitempty"`
}

type sessionResponse struct {
	User      userResponse `json:"user"`
	Token     string       `json:"token"`
	ExpiresIn string       `json:"expiresIn"`
}

// sessionView selects which timestamps of the user are exposed.
type sessionView int

const (
	viewRegistered sessionView = iota
	viewLoggedIn
	viewRefreshed
)

func newSessionResponse(s services.Session, view sessionView) sessionResponse {
	u := userResponse{ID: s.User.ID, Name: s.User.Name, Email: s.User.Email}
	switch view {
	case viewRegistered:
		created := s.User.CreatedAt
		u.CreatedAt = &created
	case viewLoggedIn:
		if !s.User.LastLogin.IsZero() {
			last := s.User.LastLogin
			u.LastLogin = &last
		}
	}
	return sessionResponse{User: u, Token: s.Token, ExpiresIn: s.ExpiresIn}
}

type summaryResponse struct {
	dashboard.Summary
	Top []transactionResponse `json:"top"`
}
