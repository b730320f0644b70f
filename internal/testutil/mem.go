package testutil

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dalemusser/organizer/internal/domain/models"
)

// ErrMemDuplicate is returned by the in-memory stores on a key collision.
var ErrMemDuplicate = errors.New("mem: duplicate key")

// Mem is an in-memory stand-in for the mongo stores, used by engine tests
// that do not need a database. The typed views (Messages, Tickets, ...)
// each satisfy one engine interface.
type Mem struct {
	mu  sync.Mutex
	seq int64

	Now func() time.Time

	persons    map[int64]models.Person
	contexts   map[int64]models.Context
	members    map[int64]models.Member
	messages   map[int64]models.Message
	prefs      map[int64]models.EmailPreference // member id
	watermarks map[[2]int64]int64               // (person, context)
	tickets    map[string]models.Ticket
	inbound    map[string]models.InboundRecord
	touched    map[[2]int64]int

	// FailInsert, when set, is returned by every message insert.
	FailInsert error
	// FailAdvance, when set, is returned by every watermark advance.
	FailAdvance error
}

// NewMem returns an empty store whose ids start after startID.
func NewMem(startID int64) *Mem {
	return &Mem{
		seq:        startID,
		Now:        func() time.Time { return time.Now().UTC() },
		persons:    make(map[int64]models.Person),
		contexts:   make(map[int64]models.Context),
		members:    make(map[int64]models.Member),
		messages:   make(map[int64]models.Message),
		prefs:      make(map[int64]models.EmailPreference),
		watermarks: make(map[[2]int64]int64),
		tickets:    make(map[string]models.Ticket),
		inbound:    make(map[string]models.InboundRecord),
		touched:    make(map[[2]int64]int),
	}
}

/*─────────────────────────────────────────────────────────────────────────────*
| Seeding                                                                      |
*─────────────────────────────────────────────────────────────────────────────*/

// AddPerson stores p as given.
func (m *Mem) AddPerson(p models.Person) models.Person {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.persons[p.ID] = p
	return p
}

// AddContext stores c as given.
func (m *Mem) AddContext(c models.Context) models.Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contexts[c.ID] = c
	return c
}

// AddMember stores an active membership with generated slugs.
func (m *Mem) AddMember(id, personID, contextID int64) models.Member {
	m.mu.Lock()
	defer m.mu.Unlock()
	mem := models.Member{
		ID:         id,
		PersonID:   personID,
		ContextID:  contextID,
		Active:     true,
		LeaveSlug:  "leave-" + strconv.FormatInt(id, 10),
		InviteSlug: "invite-" + strconv.FormatInt(id, 10),
	}
	m.members[id] = mem
	return mem
}

// Deactivate marks a membership inactive.
func (m *Mem) Deactivate(memberID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mem := m.members[memberID]
	mem.Active = false
	m.members[memberID] = mem
}

// SetPreference stores a member's email preference.
func (m *Mem) SetPreference(memberID int64, p models.EmailPreference) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prefs[memberID] = p
}

// AddMessage stores msg as given.
func (m *Mem) AddMessage(msg models.Message) models.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages[msg.ID] = msg
	if msg.ID > m.seq {
		m.seq = msg.ID
	}
	return msg
}

// SetWatermark stores a digest cursor.
func (m *Mem) SetWatermark(personID, contextID, messageID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.watermarks[[2]int64{personID, contextID}] = messageID
}

/*─────────────────────────────────────────────────────────────────────────────*
| Inspection                                                                   |
*─────────────────────────────────────────────────────────────────────────────*/

// Message returns a stored message.
func (m *Mem) Message(id int64) (models.Message, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[id]
	return msg, ok
}

// MessageCount returns the number of stored messages.
func (m *Mem) MessageCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages)
}

// WatermarkOf returns the stored digest cursor.
func (m *Mem) WatermarkOf(personID, contextID int64) (int64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.watermarks[[2]int64{personID, contextID}]
	return v, ok
}

// TicketList returns every stored ticket.
func (m *Mem) TicketList() []models.Ticket {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Ticket, 0, len(m.tickets))
	for _, t := range m.tickets {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// InboundList returns every stored inbound record.
func (m *Mem) InboundList() []models.InboundRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.InboundRecord, 0, len(m.inbound))
	for _, r := range m.inbound {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Touched reports how many times a member row was touched.
func (m *Mem) Touched(personID, contextID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.touched[[2]int64{personID, contextID}]
}

/*─────────────────────────────────────────────────────────────────────────────*
| Views                                                                        |
*─────────────────────────────────────────────────────────────────────────────*/

// MemMessages implements the message store interfaces.
type MemMessages struct{ m *Mem }

// MemPersons implements person lookups.
type MemPersons struct{ m *Mem }

// MemContexts implements context lookups.
type MemContexts struct{ m *Mem }

// MemMembers implements member queries and the touch hook.
type MemMembers struct{ m *Mem }

// MemFacets implements preference and watermark facets.
type MemFacets struct{ m *Mem }

// MemTickets implements the email_tx store.
type MemTickets struct{ m *Mem }

// MemInbound implements the email_rx store.
type MemInbound struct{ m *Mem }

func (m *Mem) Messages() MemMessages { return MemMessages{m} }
func (m *Mem) Persons() MemPersons   { return MemPersons{m} }
func (m *Mem) Contexts() MemContexts { return MemContexts{m} }
func (m *Mem) Members() MemMembers   { return MemMembers{m} }
func (m *Mem) Facets() MemFacets     { return MemFacets{m} }
func (m *Mem) Tickets() MemTickets   { return MemTickets{m} }
func (m *Mem) Inbound() MemInbound   { return MemInbound{m} }

func (s MemMessages) Insert(_ context.Context, personID, contextID int64, inReplyTo *int64, content string) (models.Message, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if s.m.FailInsert != nil {
		return models.Message{}, s.m.FailInsert
	}
	s.m.seq++
	now := s.m.Now()
	msg := models.Message{
		ID:        s.m.seq,
		PersonID:  personID,
		ContextID: contextID,
		InReplyTo: inReplyTo,
		Content:   strings.TrimSpace(content),
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.m.messages[msg.ID] = msg
	return msg, nil
}

func (s MemMessages) GetByID(_ context.Context, id int64) (*models.Message, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	msg, ok := s.m.messages[id]
	if !ok {
		return nil, nil
	}
	return &msg, nil
}

func (s MemMessages) GetByIDs(_ context.Context, ids []int64) (map[int64]models.Message, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	out := make(map[int64]models.Message)
	for _, id := range ids {
		if msg, ok := s.m.messages[id]; ok {
			out[id] = msg
		}
	}
	return out, nil
}

func (s MemMessages) ListUnseen(_ context.Context, q models.UnseenQuery) ([]models.DigestEntry, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var out []models.DigestEntry
	for _, msg := range s.m.messages {
		if msg.ContextID != q.ContextID || msg.PersonID == q.ExcludePersonID {
			continue
		}
		if !msg.CreatedAt.After(q.Since) {
			continue
		}
		if q.AfterID != nil && msg.ID <= *q.AfterID {
			continue
		}
		author, ok := s.m.persons[msg.PersonID]
		if !ok {
			continue
		}
		out = append(out, models.DigestEntry{Message: msg, AuthorName: author.DisplayName()})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s MemPersons) GetByID(_ context.Context, id int64) (*models.Person, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	p, ok := s.m.persons[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (s MemContexts) GetByID(_ context.Context, id int64) (*models.Context, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	c, ok := s.m.contexts[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (s MemMembers) ActiveMembers(_ context.Context, contextID, excludePersonID int64) ([]models.Recipient, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var out []models.Recipient
	for _, mem := range s.m.members {
		if mem.ContextID != contextID || !mem.Active || mem.PersonID == excludePersonID {
			continue
		}
		p, ok := s.m.persons[mem.PersonID]
		if !ok {
			continue
		}
		c, ok := s.m.contexts[mem.ContextID]
		if !ok {
			continue
		}
		out = append(out, models.Recipient{
			MemberID:    mem.ID,
			LeaveSlug:   mem.LeaveSlug,
			InviteSlug:  mem.InviteSlug,
			PersonID:    p.ID,
			Email:       p.Email,
			Name:        p.Name,
			ContextName: c.Name,
			ContextSlug: c.Slug,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MemberID < out[j].MemberID })
	return out, nil
}

func (s MemMembers) ListDigestEligible(_ context.Context) ([]models.DigestMembership, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var out []models.DigestMembership
	for id, p := range s.m.prefs {
		mem, ok := s.m.members[id]
		if !ok || !mem.Active || p != models.EmailDigest {
			continue
		}
		out = append(out, models.DigestMembership{PersonID: mem.PersonID, ContextID: mem.ContextID})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PersonID != out[j].PersonID {
			return out[i].PersonID < out[j].PersonID
		}
		return out[i].ContextID < out[j].ContextID
	})
	return out, nil
}

func (s MemMembers) Touch(_ context.Context, personID, contextID int64) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	s.m.touched[[2]int64{personID, contextID}]++
	return nil
}

func (s MemFacets) EmailPreferences(_ context.Context, memberIDs []int64) (map[int64]models.EmailPreference, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	out := make(map[int64]models.EmailPreference)
	for _, id := range memberIDs {
		if p, ok := s.m.prefs[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (s MemFacets) Watermark(_ context.Context, personID, contextID int64) (models.DigestWatermark, bool, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	v, ok := s.m.watermarks[[2]int64{personID, contextID}]
	if !ok {
		return models.DigestWatermark{}, false, nil
	}
	return models.DigestWatermark{ContextID: contextID, MessageID: v}, true, nil
}

func (s MemFacets) AdvanceWatermark(_ context.Context, personID, contextID int64, prev *models.DigestWatermark, next int64) (bool, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if s.m.FailAdvance != nil {
		return false, s.m.FailAdvance
	}
	key := [2]int64{personID, contextID}
	cur, ok := s.m.watermarks[key]
	switch {
	case prev == nil && ok:
		return false, nil
	case prev != nil && (!ok || cur != prev.MessageID):
		return false, nil
	case prev != nil && next <= prev.MessageID:
		return false, nil
	}
	s.m.watermarks[key] = next
	return true, nil
}

func (s MemTickets) Insert(_ context.Context, t models.Ticket) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if _, ok := s.m.tickets[t.ID]; ok {
		return ErrMemDuplicate
	}
	s.m.tickets[t.ID] = t
	return nil
}

func (s MemTickets) GetByID(_ context.Context, id string) (*models.Ticket, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	t, ok := s.m.tickets[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (s MemInbound) Save(_ context.Context, rec models.InboundRecord) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	s.m.inbound[rec.ID] = rec
	return nil
}

func (s MemInbound) GetByID(_ context.Context, id string) (*models.InboundRecord, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	rec, ok := s.m.inbound[id]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}
