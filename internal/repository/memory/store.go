// Package memory is an in-process implementation of the repository interfaces.
// It backs STORAGE_DRIVER=memory for local runs and the service tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	appErrors "github.com/unclebandit/mailleopard-backend/internal/errors"
	"github.com/unclebandit/mailleopard-backend/internal/model"
	"github.com/unclebandit/mailleopard-backend/internal/repository"
)

type state struct {
	campaigns     map[int]model.Campaign
	templates     map[int]model.Template
	customers     []model.Customer
	subscribers   map[int]model.Subscriber
	lists         map[int]model.List
	subscriptions []model.ListSubscription
	recipients    map[int]model.CampaignRecipient
	events        []model.CampaignEvent
	activity      []model.ActivityEntry
	seq           int
}

func (st *state) clone() state {
	c := state{
		campaigns:     make(map[int]model.Campaign, len(st.campaigns)),
		templates:     make(map[int]model.Template, len(st.templates)),
		customers:     append([]model.Customer(nil), st.customers...),
		subscribers:   make(map[int]model.Subscriber, len(st.subscribers)),
		lists:         make(map[int]model.List, len(st.lists)),
		subscriptions: append([]model.ListSubscription(nil), st.subscriptions...),
		recipients:    make(map[int]model.CampaignRecipient, len(st.recipients)),
		events:        append([]model.CampaignEvent(nil), st.events...),
		activity:      append([]model.ActivityEntry(nil), st.activity...),
		seq:           st.seq,
	}
	for k, v := range st.campaigns {
		c.campaigns[k] = v
	}
	for k, v := range st.templates {
		c.templates[k] = v
	}
	for k, v := range st.subscribers {
		c.subscribers[k] = v
	}
	for k, v := range st.lists {
		c.lists[k] = v
	}
	for k, v := range st.recipients {
		c.recipients[k] = v
	}
	return c
}

// Store holds all tables behind one mutex. Transactions are serialized and
// rolled back by restoring a snapshot; writes made outside WithTx while a
// transaction is running are lost if that transaction rolls back.
type Store struct {
	txMu sync.Mutex
	mu   sync.Mutex
	st   state
}

func New() *Store {
	return &Store{st: state{
		campaigns:   map[int]model.Campaign{},
		templates:   map[int]model.Template{},
		subscribers: map[int]model.Subscriber{},
		lists:       map[int]model.List{},
		recipients:  map[int]model.CampaignRecipient{},
	}}
}

func (s *Store) nextID() int {
	s.st.seq++
	return s.st.seq
}

func (s *Store) Campaigns() repository.CampaignRepositoryInterface     { return campaignRepo{s} }
func (s *Store) Customers() repository.CustomerRepositoryInterface     { return customerRepo{s} }
func (s *Store) Subscribers() repository.SubscriberRepositoryInterface { return subscriberRepo{s} }
func (s *Store) Recipients() repository.RecipientRepositoryInterface   { return recipientRepo{s} }
func (s *Store) Events() repository.EventRepositoryInterface           { return eventRepo{s} }
func (s *Store) Templates() repository.TemplateRepositoryInterface     { return templateRepo{s} }
func (s *Store) Activity() repository.ActivityRepositoryInterface      { return activityRepo{s} }

func (s *Store) Repositories() repository.Repositories {
	return repository.Repositories{
		Campaigns:   s.Campaigns(),
		Subscribers: s.Subscribers(),
		Recipients:  s.Recipients(),
		Events:      s.Events(),
	}
}

func (s *Store) WithTx(ctx context.Context, fn func(repository.Repositories) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snapshot := s.st.clone()
	s.mu.Unlock()

	err := fn(s.Repositories())
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		s.mu.Lock()
		s.st = snapshot
		s.mu.Unlock()
	}
	return err
}

// ===== seeding and inspection =====

func (s *Store) AddCampaign(c model.Campaign) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == 0 {
		c.ID = s.nextID()
	}
	if c.Status == "" {
		c.Status = model.CampaignStatusDraft
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	s.st.campaigns[c.ID] = c
	return c.ID
}

func (s *Store) AddTemplate(t model.Template) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == 0 {
		t.ID = s.nextID()
	}
	s.st.templates[t.ID] = t
	return t.ID
}

func (s *Store) AddCustomer(c model.Customer) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == 0 {
		c.ID = s.nextID()
	}
	s.st.customers = append(s.st.customers, c)
	return c.ID
}

func (s *Store) AddSubscriber(sub model.Subscriber) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sub.ID == 0 {
		sub.ID = s.nextID()
	}
	if sub.Status == "" {
		sub.Status = model.SubscriberStatusActive
	}
	sub.Email = strings.ToLower(strings.TrimSpace(sub.Email))
	s.st.subscribers[sub.ID] = sub
	return sub.ID
}

func (s *Store) AddList(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID()
	s.st.lists[id] = model.List{ID: id, Name: name}
	return id
}

func (s *Store) Subscribe(listID, subscriberID int, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.subscriptions = append(s.st.subscriptions, model.ListSubscription{
		ListID: listID, SubscriberID: subscriberID, Status: status,
	})
}

// SetCampaignStatus overwrites a campaign's status outside the state machine.
func (s *Store) SetCampaignStatus(id int, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.st.campaigns[id]; ok {
		c.Status = status
		s.st.campaigns[id] = c
	}
}

func (s *Store) Campaign(id int) (model.Campaign, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.st.campaigns[id]
	return c, ok
}

func (s *Store) Subscriber(id int) (model.Subscriber, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.st.subscribers[id]
	return sub, ok
}

func (s *Store) SubscriberByEmail(email string) (model.Subscriber, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.st.subscribers {
		if sub.Email == email {
			return sub, true
		}
	}
	return model.Subscriber{}, false
}

func (s *Store) Subscriptions(subscriberID int) []model.ListSubscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.ListSubscription
	for _, ls := range s.st.subscriptions {
		if ls.SubscriberID == subscriberID {
			out = append(out, ls)
		}
	}
	return out
}

// CampaignRecipients returns the ledger of one campaign in id order.
func (s *Store) CampaignRecipients(campaignID int) []model.CampaignRecipient {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.CampaignRecipient
	for _, r := range s.st.recipients {
		if r.CampaignID == campaignID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) CampaignEvents(campaignID int) []model.CampaignEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.CampaignEvent
	for _, e := range s.st.events {
		if e.CampaignID == campaignID {
			out = append(out, e)
		}
	}
	return out
}

func (s *Store) ActivityLog() []model.ActivityEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.ActivityEntry(nil), s.st.activity...)
}

// ===== campaigns =====

type campaignRepo struct{ s *Store }

func (r campaignRepo) ListCampaigns(_ context.Context, offset, limit int, audienceType, status string) ([]*model.Campaign, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var all []model.Campaign
	for _, c := range r.s.st.campaigns {
		if audienceType != "" && c.AudienceType != audienceType {
			continue
		}
		if status != "" && c.Status != status {
			continue
		}
		all = append(all, c)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })

	out := []*model.Campaign{}
	for i := offset; i < len(all) && i < offset+limit; i++ {
		c := all[i]
		out = append(out, &c)
	}
	return out, len(all), nil
}

func (r campaignRepo) GetByID(_ context.Context, id int) (*model.Campaign, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.st.campaigns[id]
	if !ok {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	return &c, nil
}

func (r campaignRepo) MarkSending(_ context.Context, id int) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.st.campaigns[id]
	if !ok || !c.Dispatchable() {
		return false, nil
	}
	now := time.Now()
	c.Status = model.CampaignStatusSending
	c.UpdatedAt = &now
	r.s.st.campaigns[id] = c
	return true, nil
}

func (r campaignRepo) FinishDispatch(_ context.Context, id int, status string, lastError *string, sentAt *time.Time, metrics []byte) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if c, ok := r.s.st.campaigns[id]; ok {
		now := time.Now()
		c.Status = status
		c.LastError = lastError
		if sentAt != nil {
			c.SentAt = sentAt
		}
		c.MetricsSummary = append([]byte(nil), metrics...)
		c.UpdatedAt = &now
		r.s.st.campaigns[id] = c
	}
	return nil
}

func (r campaignRepo) UpdateMetricsSummary(_ context.Context, id int, metrics []byte) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if c, ok := r.s.st.campaigns[id]; ok {
		now := time.Now()
		c.MetricsSummary = append([]byte(nil), metrics...)
		c.UpdatedAt = &now
		r.s.st.campaigns[id] = c
	}
	return nil
}

// ===== customers / templates / activity =====

type customerRepo struct{ s *Store }

func (r customerRepo) ListWithEmail(_ context.Context) ([]model.Customer, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []model.Customer{}
	for _, c := range r.s.st.customers {
		if strings.TrimSpace(c.Email) != "" {
			out = append(out, c)
		}
	}
	return out, nil
}

type templateRepo struct{ s *Store }

func (r templateRepo) GetByID(_ context.Context, id int) (*model.Template, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.st.templates[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

type activityRepo struct{ s *Store }

func (r activityRepo) Log(_ context.Context, e *model.ActivityEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e.ID = r.s.nextID()
	e.CreatedAt = time.Now()
	r.s.st.activity = append(r.s.st.activity, *e)
	return nil
}

// ===== subscribers =====

type subscriberRepo struct{ s *Store }

func (r subscriberRepo) GetByID(_ context.Context, id int) (*model.Subscriber, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sub, ok := r.s.st.subscribers[id]
	if !ok {
		return nil, nil
	}
	return &sub, nil
}

func (r subscriberRepo) findByEmail(email string) (model.Subscriber, bool) {
	for _, sub := range r.s.st.subscribers {
		if sub.Email == email {
			return sub, true
		}
	}
	return model.Subscriber{}, false
}

func (r subscriberRepo) GetByEmail(_ context.Context, email string) (*model.Subscriber, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sub, ok := r.findByEmail(email)
	if !ok {
		return nil, nil
	}
	return &sub, nil
}

func (r subscriberRepo) Create(_ context.Context, sub *model.Subscriber) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if existing, ok := r.findByEmail(sub.Email); ok {
		*sub = existing
		return nil
	}
	sub.ID = r.s.nextID()
	sub.CreatedAt = time.Now()
	r.s.st.subscribers[sub.ID] = *sub
	return nil
}

func (r subscriberRepo) ListActiveMembers(_ context.Context, listIDs []int) ([]model.ListMember, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	wanted := map[int]bool{}
	for _, id := range listIDs {
		wanted[id] = true
	}
	subs := append([]model.ListSubscription(nil), r.s.st.subscriptions...)
	sort.SliceStable(subs, func(i, j int) bool {
		if subs[i].ListID != subs[j].ListID {
			return subs[i].ListID < subs[j].ListID
		}
		return subs[i].SubscriberID < subs[j].SubscriberID
	})

	out := []model.ListMember{}
	for _, ls := range subs {
		if !wanted[ls.ListID] || ls.Status != model.SubscriberStatusActive {
			continue
		}
		sub, ok := r.s.st.subscribers[ls.SubscriberID]
		if !ok {
			continue
		}
		out = append(out, model.ListMember{
			ListID: ls.ListID, SubscriberID: sub.ID, Email: sub.Email,
			FirstName: sub.FirstName, LastName: sub.LastName,
		})
	}
	return out, nil
}

func (r subscriberRepo) update(id int, fn func(*model.Subscriber)) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if sub, ok := r.s.st.subscribers[id]; ok {
		fn(&sub)
		now := time.Now()
		sub.UpdatedAt = &now
		r.s.st.subscribers[id] = sub
	}
}

func (r subscriberRepo) MarkBounced(_ context.Context, id int) error {
	r.update(id, func(sub *model.Subscriber) { sub.Status = model.SubscriberStatusBounced })
	return nil
}

func (r subscriberRepo) TouchEngagement(_ context.Context, id int, at time.Time) error {
	r.update(id, func(sub *model.Subscriber) {
		if sub.LastEngagementAt == nil || at.After(*sub.LastEngagementAt) {
			t := at
			sub.LastEngagementAt = &t
		}
	})
	return nil
}

func (r subscriberRepo) Unsubscribe(_ context.Context, id int, at time.Time) error {
	r.update(id, func(sub *model.Subscriber) {
		sub.Status = model.SubscriberStatusUnsubscribed
		if sub.UnsubscribedAt == nil {
			t := at
			sub.UnsubscribedAt = &t
		}
	})

	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i, ls := range r.s.st.subscriptions {
		if ls.SubscriberID != id {
			continue
		}
		ls.Status = model.SubscriberStatusUnsubscribed
		if ls.UnsubscribedAt == nil {
			t := at
			ls.UnsubscribedAt = &t
		}
		r.s.st.subscriptions[i] = ls
	}
	return nil
}

// ===== recipients =====

type recipientRepo struct{ s *Store }

func (r recipientRepo) Upsert(_ context.Context, rec *model.CampaignRecipient) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	now := time.Now()
	for id, existing := range r.s.st.recipients {
		if existing.CampaignID != rec.CampaignID || existing.Email != rec.Email {
			continue
		}
		existing.SubscriberID = rec.SubscriberID
		existing.FirstName = rec.FirstName
		existing.LastName = rec.LastName
		existing.Status = rec.Status
		existing.LastError = rec.LastError
		if rec.UnsubscribeToken != nil {
			existing.UnsubscribeToken = rec.UnsubscribeToken
		}
		existing.UpdatedAt = now
		r.s.st.recipients[id] = existing
		rec.ID = id
		return id, nil
	}

	row := *rec
	row.ID = r.s.nextID()
	row.CreatedAt = now
	row.UpdatedAt = now
	r.s.st.recipients[row.ID] = row
	rec.ID = row.ID
	return row.ID, nil
}

func (r recipientRepo) GetByIDs(_ context.Context, ids []int) ([]*model.CampaignRecipient, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sorted := append([]int(nil), ids...)
	sort.Ints(sorted)
	out := []*model.CampaignRecipient{}
	seen := map[int]bool{}
	for _, id := range sorted {
		if seen[id] {
			continue
		}
		seen[id] = true
		if rec, ok := r.s.st.recipients[id]; ok {
			out = append(out, &rec)
		}
	}
	return out, nil
}

func (r recipientRepo) GetByID(_ context.Context, id int) (*model.CampaignRecipient, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rec, ok := r.s.st.recipients[id]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (r recipientRepo) GetByUnsubscribeToken(_ context.Context, token string) (*model.CampaignRecipient, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if token == "" {
		return nil, nil
	}
	for _, rec := range r.s.st.recipients {
		if rec.UnsubscribeToken != nil && *rec.UnsubscribeToken == token {
			return &rec, nil
		}
	}
	return nil, nil
}

func (r recipientRepo) update(id int, fn func(*model.CampaignRecipient)) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if rec, ok := r.s.st.recipients[id]; ok {
		fn(&rec)
		rec.UpdatedAt = time.Now()
		r.s.st.recipients[id] = rec
	}
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func later(cur *time.Time, at time.Time) *time.Time {
	if cur != nil && !at.After(*cur) {
		return cur
	}
	return &at
}

func (r recipientRepo) MarkSent(_ context.Context, id int, sentAt time.Time) error {
	r.update(id, func(rec *model.CampaignRecipient) {
		rec.Status = model.RecipientStatusSent
		rec.SentAt = &sentAt
		rec.LastError = nil
	})
	return nil
}

func (r recipientRepo) MarkFailed(_ context.Context, id int, lastError string) error {
	r.update(id, func(rec *model.CampaignRecipient) {
		rec.Status = model.RecipientStatusFailed
		rec.LastError = strPtr(lastError)
	})
	return nil
}

func (r recipientRepo) MarkDelivered(_ context.Context, id int, at time.Time) error {
	r.update(id, func(rec *model.CampaignRecipient) {
		if rec.Status == model.RecipientStatusSent {
			return
		}
		rec.Status = model.RecipientStatusSent
		if rec.SentAt == nil {
			rec.SentAt = &at
		}
	})
	return nil
}

func (r recipientRepo) RecordOpen(_ context.Context, id int, at time.Time) error {
	r.update(id, func(rec *model.CampaignRecipient) {
		rec.Opens++
		rec.LastOpenAt = later(rec.LastOpenAt, at)
	})
	return nil
}

func (r recipientRepo) RecordClick(_ context.Context, id int, at time.Time) error {
	r.update(id, func(rec *model.CampaignRecipient) {
		rec.Clicks++
		rec.LastClickAt = later(rec.LastClickAt, at)
	})
	return nil
}

func (r recipientRepo) ConsumeUnsubscribeToken(_ context.Context, id int, reason string) error {
	r.update(id, func(rec *model.CampaignRecipient) {
		rec.UnsubscribeToken = nil
		rec.LastError = strPtr(reason)
	})
	return nil
}

func (r recipientRepo) Stats(_ context.Context, campaignID int) (model.RecipientStats, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var st model.RecipientStats
	for _, rec := range r.s.st.recipients {
		if rec.CampaignID != campaignID {
			continue
		}
		st.Total++
		switch rec.Status {
		case model.RecipientStatusPending:
			st.Pending++
		case model.RecipientStatusSent:
			st.Sent++
		case model.RecipientStatusFailed:
			st.Failed++
		case model.RecipientStatusSkipped:
			st.Skipped++
		}
		st.Opens += rec.Opens
		st.Clicks += rec.Clicks
		if rec.Opens > 0 {
			st.UniqueOpens++
		}
		if rec.Clicks > 0 {
			st.UniqueClicks++
		}
	}
	return st, nil
}

// ===== events =====

type eventRepo struct{ s *Store }

func (r eventRepo) Insert(_ context.Context, e *model.CampaignEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e.ID = r.s.nextID()
	e.CreatedAt = time.Now()
	r.s.st.events = append(r.s.st.events, *e)
	return nil
}

func (r eventRepo) CountByType(_ context.Context, campaignID int) (map[string]int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	counts := map[string]int{}
	for _, t := range model.DurableEventTypes {
		counts[t] = 0
	}
	for _, e := range r.s.st.events {
		if e.CampaignID == campaignID {
			counts[e.EventType]++
		}
	}
	return counts, nil
}

var (
	_ repository.TxRunner                      = (*Store)(nil)
	_ repository.CampaignRepositoryInterface   = campaignRepo{}
	_ repository.CustomerRepositoryInterface   = customerRepo{}
	_ repository.SubscriberRepositoryInterface = subscriberRepo{}
	_ repository.RecipientRepositoryInterface  = recipientRepo{}
	_ repository.EventRepositoryInterface      = eventRepo{}
	_ repository.TemplateRepositoryInterface   = templateRepo{}
	_ repository.ActivityRepositoryInterface   = activityRepo{}
)
