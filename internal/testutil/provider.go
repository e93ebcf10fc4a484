package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/vdavid/vchat/internal/models"
	"github.com/vdavid/vchat/internal/provider"
)

// SentRaw is one SendRaw call recorded by FakeProvider.
type SentRaw struct {
	Raw      string
	ThreadID string
}

// FakeProvider is an in-memory provider.Provider. Messages are listed newest
// first, in reverse order of AddMessage.
type FakeProvider struct {
	mu sync.Mutex

	profile     models.Profile
	order       []string
	messages    map[string]*models.ProviderMessage
	attachments map[string]string
	sent        []SentRaw
	getCalls    map[string]int

	// Errors injected per call. GetErrs is keyed by message id.
	ProfileErr error
	ListErr    error
	SendErr    error
	GetErrs    map[string]error
}

func NewFakeProvider(email, name string) *FakeProvider {
	return &FakeProvider{
		profile:     models.Profile{Email: email, DisplayName: name},
		messages:    make(map[string]*models.ProviderMessage),
		attachments: make(map[string]string),
		getCalls:    make(map[string]int),
		GetErrs:     make(map[string]error),
	}
}

func (p *FakeProvider) AddMessage(msgs ...*models.ProviderMessage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, m := range msgs {
		if _, ok := p.messages[m.ID]; !ok {
			p.order = append([]string{m.ID}, p.order...)
		}
		p.messages[m.ID] = m
	}
}

// AddAttachment registers base64url data for an attachment.
func (p *FakeProvider) AddAttachment(messageID, attachmentID, data string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attachments[messageID+"/"+attachmentID] = data
}

func (p *FakeProvider) Sent() []SentRaw {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]SentRaw(nil), p.sent...)
}

// GetCalls returns how many times GetMessage was asked for id.
func (p *FakeProvider) GetCalls(id string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.getCalls[id]
}

func (p *FakeProvider) Profile(ctx context.Context) (*models.Profile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ProfileErr != nil {
		return nil, p.ProfileErr
	}
	profile := p.profile
	return &profile, nil
}

func (p *FakeProvider) ListMessageIDs(ctx context.Context, limit int) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ListErr != nil {
		return nil, p.ListErr
	}
	ids := p.order
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return append([]string(nil), ids...), nil
}

func (p *FakeProvider) GetMessage(ctx context.Context, id string) (*models.ProviderMessage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.getCalls[id]++
	if err := p.GetErrs[id]; err != nil {
		return nil, err
	}
	m, ok := p.messages[id]
	if !ok {
		return nil, fmt.Errorf("message %s: %w", id, provider.ErrNotFound)
	}
	return m, nil
}

func (p *FakeProvider) GetAttachment(ctx context.Context, messageID, attachmentID string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	data, ok := p.attachments[messageID+"/"+attachmentID]
	if !ok {
		return "", fmt.Errorf("attachment %s: %w", attachmentID, provider.ErrNotFound)
	}
	return data, nil
}

func (p *FakeProvider) SendRaw(ctx context.Context, raw, threadID string) (*models.SendResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.SendErr != nil {
		return nil, p.SendErr
	}
	p.sent = append(p.sent, SentRaw{Raw: raw, ThreadID: threadID})
	id := fmt.Sprintf("sent-%d", len(p.sent))
	if threadID == "" {
		threadID = "thread-" + id
	}
	return &models.SendResult{ID: id, ThreadID: threadID}, nil
}

// FakeAuthenticator is a provider.Authenticator with a fixed identity.
type FakeAuthenticator struct {
	mu            sync.Mutex
	authenticated bool
	profile       models.Profile
	refreshes     int

	RefreshErr error
}

func NewFakeAuthenticator(email, name string) *FakeAuthenticator {
	return &FakeAuthenticator{authenticated: true, profile: models.Profile{Email: email, DisplayName: name}}
}

func (a *FakeAuthenticator) SetAuthenticated(v bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.authenticated = v
}

func (a *FakeAuthenticator) IsAuthenticated() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.authenticated
}

func (a *FakeAuthenticator) CurrentUserEmail() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.profile.Email
}

func (a *FakeAuthenticator) CurrentUserDisplayName() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.profile.DisplayName
}

func (a *FakeAuthenticator) Refresh(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.refreshes++
	return a.RefreshErr
}

func (a *FakeAuthenticator) Refreshes() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.refreshes
}

func (a *FakeAuthenticator) SetProfile(p models.Profile) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.profile = p
}
