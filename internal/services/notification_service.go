package services

import (
	"context"
	"fmt"

	"qmd/internal/domain"
	"qmd/internal/qmdapi"
	"qmd/internal/session"
)

type NotificationService struct {
	API      *qmdapi.Client
	Sessions *session.Manager
}

func NewNotificationService(api *qmdapi.Client, sessions *session.Manager) *NotificationService {
	return &NotificationService{API: api, Sessions: sessions}
}

// Normalize fills missing ids with notif-<index> and unknown kinds with info.
func Normalize(ns []domain.Notification) []domain.Notification {
	out := make([]domain.Notification, len(ns))
	for i, n := range ns {
		if n.ID == "" {
			n.ID = domain.ID(fmt.Sprintf("notif-%d", i))
		}
		switch n.Tipo {
		case "info", "success", "warning", "error":
		default:
			n.Tipo = "info"
		}
		out[i] = n
	}
	return out
}

// List returns the citizen's notifications with this session's read and
// dismissed state applied. Read and dismiss never reach the API.
func (s *NotificationService) List(ctx context.Context, sc session.Context) ([]domain.Notification, error) {
	if !sc.HasCitizen() {
		return nil, ErrNoCitizen
	}
	raw, err := s.API.ListNotifications(ctx, sc.CitizenID)
	if err != nil {
		return nil, err
	}
	read, err := s.Sessions.Members(ctx, sc.SessionID, session.KeyReadNotifs)
	if err != nil {
		return nil, err
	}
	hidden, err := s.Sessions.Members(ctx, sc.SessionID, session.KeyHiddenNotif)
	if err != nil {
		return nil, err
	}
	all := Normalize(raw)
	out := all[:0]
	for _, n := range all {
		if hidden[n.ID.String()] {
			continue
		}
		if read[n.ID.String()] {
			n.Leida = true
		}
		out = append(out, n)
	}
	return out, nil
}

func Unread(ns []domain.Notification) int {
	n := 0
	for _, x := range ns {
		if !x.Leida {
			n++
		}
	}
	return n
}

func (s *NotificationService) MarkRead(ctx context.Context, sc session.Context, id string) error {
	return s.Sessions.AddMember(ctx, sc.SessionID, session.KeyReadNotifs, id)
}

func (s *NotificationService) Dismiss(ctx context.Context, sc session.Context, id string) error {
	return s.Sessions.AddMember(ctx, sc.SessionID, session.KeyHiddenNotif, id)
}

// MarkAllRead marks every currently listed notification as read.
func (s *NotificationService) MarkAllRead(ctx context.Context, sc session.Context) error {
	ns, err := s.List(ctx, sc)
	if err != nil {
		return err
	}
	for _, n := range ns {
		if n.Leida {
			continue
		}
		if err := s.MarkRead(ctx, sc, n.ID.String()); err != nil {
			return err
		}
	}
	return nil
}
