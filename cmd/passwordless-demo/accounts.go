package main

import (
	"context"
	"fmt"
	"strings"
)

// staticAccounts is a fixed account directory for the demo.
type staticAccounts struct {
	byRecipient map[string]string
	bySubject   map[string]string
}

func parseAccounts(pairs []string) (*staticAccounts, error) {
	a := &staticAccounts{
		byRecipient: make(map[string]string, len(pairs)),
		bySubject:   make(map[string]string, len(pairs)),
	}
	for _, pair := range pairs {
		subject, email, ok := strings.Cut(pair, "=")
		subject, email = strings.TrimSpace(subject), strings.ToLower(strings.TrimSpace(email))
		if !ok || subject == "" || email == "" {
			return nil, fmt.Errorf("invalid account %q, want subject=email", pair)
		}
		a.byRecipient[email] = subject
		a.bySubject[subject] = email
	}
	return a, nil
}

func (a *staticAccounts) SubjectByRecipient(_ context.Context, recipient string) (string, bool, error) {
	s, ok := a.byRecipient[recipient]
	return s, ok, nil
}

func (a *staticAccounts) RecipientBySubject(_ context.Context, subjectID string) (string, bool, error) {
	r, ok := a.bySubject[subjectID]
	return r, ok, nil
}
