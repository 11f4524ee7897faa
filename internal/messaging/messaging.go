// Package messaging keeps the shipper's conversations with drivers.
package messaging

import (
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

//go:embed seed.yaml
var seedYAML []byte

var (
	ErrEmptyMessage         = errors.New("message is empty")
	ErrConversationNotFound = errors.New("conversation not found")
)

type Sender string

const (
	FromUser   Sender = "user"
	FromDriver Sender = "driver"
)

type Participant struct {
	ID      string `json:"id" yaml:"id"`
	Name    string `json:"name" yaml:"name"`
	Vehicle string `json:"vehicle,omitempty" yaml:"vehicle"`
}

type CargoRef struct {
	ID     string `json:"id" yaml:"id"`
	Title  string `json:"title" yaml:"title"`
	Status string `json:"status" yaml:"status"`
}

type Message struct {
	ID     string    `json:"id"`
	Sender Sender    `json:"sender"`
	Text   string    `json:"text"`
	SentAt time.Time `json:"sent_at"`
}

type Conversation struct {
	ID         string      `json:"id"`
	Driver     Participant `json:"driver"`
	Cargo      CargoRef    `json:"cargo"`
	Messages   []Message   `json:"messages"`
	Unread     int         `json:"unread"`
	LastActive time.Time   `json:"last_active"`
}

func (c Conversation) clone() Conversation {
	c.Messages = append([]Message(nil), c.Messages...)
	return c
}

type seedFile struct {
	Conversations []struct {
		ID       string      `yaml:"id"`
		Driver   Participant `yaml:"driver"`
		Cargo    CargoRef    `yaml:"cargo"`
		Unread   int         `yaml:"unread"`
		Messages []struct {
			ID     string `yaml:"id"`
			Sender Sender `yaml:"sender"`
			Text   string `yaml:"text"`
			Ago    string `yaml:"ago"`
		} `yaml:"messages"`
	} `yaml:"conversations"`
}

// ParseSeed builds sample conversations with message times relative to now.
func ParseSeed(b []byte, now time.Time) ([]Conversation, error) {
	var f seedFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse conversations: %w", err)
	}
	out := make([]Conversation, 0, len(f.Conversations))
	for _, sc := range f.Conversations {
		c := Conversation{ID: sc.ID, Driver: sc.Driver, Cargo: sc.Cargo, Unread: sc.Unread}
		for _, sm := range sc.Messages {
			ago, err := time.ParseDuration(sm.Ago)
			if err != nil {
				return nil, fmt.Errorf("conversation %s message %s: %w", sc.ID, sm.ID, err)
			}
			m := Message{ID: sm.ID, Sender: sm.Sender, Text: sm.Text, SentAt: now.Add(-ago)}
			c.Messages = append(c.Messages, m)
			if m.SentAt.After(c.LastActive) {
				c.LastActive = m.SentAt
			}
		}
		out = append(out, c)
	}
	return out, nil
}

// Inbox holds every user's conversations. New users start with the sample
// threads. It is safe for concurrent use.
type Inbox struct {
	mu    sync.Mutex
	seed  []Conversation
	users map[string]map[string]*Conversation
	now   func() time.Time
}

func NewInbox(seed []Conversation) *Inbox {
	return &Inbox{seed: seed, users: make(map[string]map[string]*Conversation), now: time.Now}
}

// DefaultInbox seeds from the embedded sample threads.
func DefaultInbox() (*Inbox, error) {
	seed, err := ParseSeed(seedYAML, time.Now())
	if err != nil {
		return nil, err
	}
	return NewInbox(seed), nil
}

func (in *Inbox) convos(userID string) map[string]*Conversation {
	m, ok := in.users[userID]
	if !ok {
		m = make(map[string]*Conversation, len(in.seed))
		for _, c := range in.seed {
			cc := c.clone()
			m[c.ID] = &cc
		}
		in.users[userID] = m
	}
	return m
}

// Search lists conversations whose driver name or cargo title contains
// query, ignoring case. Most recently active first.
func (in *Inbox) Search(userID, query string) []Conversation {
	q := strings.ToLower(strings.TrimSpace(query))
	in.mu.Lock()
	defer in.mu.Unlock()
	out := make([]Conversation, 0)
	for _, c := range in.convos(userID) {
		if q == "" || strings.Contains(strings.ToLower(c.Driver.Name), q) || strings.Contains(strings.ToLower(c.Cargo.Title), q) {
			out = append(out, c.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastActive.Equal(out[j].LastActive) {
			return out[i].ID < out[j].ID
		}
		return out[i].LastActive.After(out[j].LastActive)
	})
	return out
}

// Open returns a conversation and marks it read.
func (in *Inbox) Open(userID, id string) (Conversation, error) {
	in.mu.Lock()
	defer in.mu.Unlock()
	c, ok := in.convos(userID)[id]
	if !ok {
		return Conversation{}, ErrConversationNotFound
	}
	c.Unread = 0
	return c.clone(), nil
}

// Send appends a user message to the conversation.
func (in *Inbox) Send(userID, id, text string) (Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Message{}, ErrEmptyMessage
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	c, ok := in.convos(userID)[id]
	if !ok {
		return Message{}, ErrConversationNotFound
	}
	m := Message{ID: uuid.NewString(), Sender: FromUser, Text: text, SentAt: in.now()}
	c.Messages = append(c.Messages, m)
	c.LastActive = m.SentAt
	return m, nil
}

// Start opens (or returns) the conversation between userID and a driver about
// one cargo, seeding it with the opening text when non-empty. Only an opening
// from the driver counts as unread.
func (in *Inbox) Start(userID string, driver Participant, cargo CargoRef, opening string, from Sender) Conversation {
	in.mu.Lock()
	defer in.mu.Unlock()
	convos := in.convos(userID)
	id := driver.ID + ":" + cargo.ID
	if c, ok := convos[id]; ok {
		c.Cargo.Status = cargo.Status
		return c.clone()
	}
	now := in.now()
	c := &Conversation{ID: id, Driver: driver, Cargo: cargo, LastActive: now}
	if opening = strings.TrimSpace(opening); opening != "" {
		c.Messages = append(c.Messages, Message{ID: uuid.NewString(), Sender: from, Text: opening, SentAt: now})
		if from == FromDriver {
			c.Unread = 1
		}
	}
	convos[id] = c
	return c.clone()
}
