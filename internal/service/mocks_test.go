package service

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"guildmirror/internal/models"

	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

// recordingTarget captures every send in order and can fail specific calls
// via per-method error queues.
type recordingTarget struct {
	mu       sync.Mutex
	ops      []string
	existing map[string]models.TargetChannelRef

	findErrs     []error
	createErrs   []error
	envelopeErrs []error
	fileErrs     []error
	linkErrs     []error

	nextChannelID int
}

func newRecordingTarget() *recordingTarget {
	return &recordingTarget{existing: make(map[string]models.TargetChannelRef)}
}

func pop(queue *[]error) error {
	if len(*queue) == 0 {
		return nil
	}
	err := (*queue)[0]
	*queue = (*queue)[1:]
	return err
}

func (t *recordingTarget) record(op string) {
	t.ops = append(t.ops, op)
}

func (t *recordingTarget) operations() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.ops...)
}

func (t *recordingTarget) FindChannelByName(ctx context.Context, name string) (*models.TargetChannelRef, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.record("find:" + name)
	if err := pop(&t.findErrs); err != nil {
		return nil, err
	}
	if ref, ok := t.existing[name]; ok {
		return &ref, nil
	}
	return nil, nil
}

func (t *recordingTarget) CreateTextChannel(ctx context.Context, name string) (models.TargetChannelRef, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.record("create:" + name)
	if err := pop(&t.createErrs); err != nil {
		return models.TargetChannelRef{}, err
	}
	t.nextChannelID++
	ref := models.TargetChannelRef{
		ID:   models.ChannelID(fmt.Sprintf("target-%d", t.nextChannelID)),
		Name: name,
	}
	t.existing[name] = ref
	return ref, nil
}

func (t *recordingTarget) SendEnvelope(ctx context.Context, channel models.TargetChannelRef, env models.TextEnvelope) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.record(fmt.Sprintf("envelope:%s:%s:%s", channel.Name, env.Author, env.Body))
	return pop(&t.envelopeErrs)
}

func (t *recordingTarget) SendFile(ctx context.Context, channel models.TargetChannelRef, att models.Attachment) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.record(fmt.Sprintf("file:%s:%s", channel.Name, att.Filename))
	return pop(&t.fileErrs)
}

func (t *recordingTarget) SendLink(ctx context.Context, channel models.TargetChannelRef, url string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.record(fmt.Sprintf("link:%s:%s", channel.Name, url))
	return pop(&t.linkErrs)
}

// mockStore is an in-memory CheckpointStore with the same monotonic-advance
// contract as the real one.
type mockStore struct {
	mu      sync.Mutex
	cursors map[models.ChannelID]models.MessageID
	loadErr error
	advErr  error
}

func newMockStore() *mockStore {
	return &mockStore{cursors: make(map[models.ChannelID]models.MessageID)}
}

func (s *mockStore) Load(ctx context.Context) (map[models.ChannelID]models.MessageID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return map[models.ChannelID]models.MessageID{}, s.loadErr
	}
	out := make(map[models.ChannelID]models.MessageID, len(s.cursors))
	for k, v := range s.cursors {
		out[k] = v
	}
	return out, nil
}

func (s *mockStore) Advance(ctx context.Context, channel models.ChannelID, id models.MessageID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.advErr != nil {
		return s.advErr
	}
	if last, ok := s.cursors[channel]; ok && !id.After(last) {
		return nil
	}
	s.cursors[channel] = id
	return nil
}

func (s *mockStore) Last(channel models.ChannelID) (models.MessageID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.cursors[channel]
	return id, ok
}

// mockSourceClient serves history from an ascending in-memory slice and live
// events from a buffered channel.
type mockSourceClient struct {
	mu       sync.Mutex
	refs     []models.SourceChannelRef
	history  map[models.ChannelID][]models.SourceMessage
	listErr  error
	fetchErr map[models.ChannelID]error
	events   chan models.SourceMessage
	selfID   string
}

func newMockSourceClient() *mockSourceClient {
	return &mockSourceClient{
		history:  make(map[models.ChannelID][]models.SourceMessage),
		fetchErr: make(map[models.ChannelID]error),
		events:   make(chan models.SourceMessage, 16),
		selfID:   "bot-self",
	}
}

func (c *mockSourceClient) addChannel(id models.ChannelID, name string) {
	c.refs = append(c.refs, models.SourceChannelRef{ID: id, Name: name})
}

func (c *mockSourceClient) addHistory(msgs ...models.SourceMessage) {
	for _, m := range msgs {
		c.history[m.ChannelID] = append(c.history[m.ChannelID], m)
	}
}

func (c *mockSourceClient) ListTextChannels(ctx context.Context) ([]models.SourceChannelRef, error) {
	if c.listErr != nil {
		return nil, c.listErr
	}
	return c.refs, nil
}

func (c *mockSourceClient) FetchHistory(ctx context.Context, channel models.ChannelID, after models.MessageID, limit int) ([]models.SourceMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.fetchErr[channel]; err != nil {
		return nil, err
	}

	var page []models.SourceMessage
	for _, m := range c.history[channel] {
		if after == "" || m.ID.After(after) {
			page = append(page, m)
		}
		if len(page) == limit {
			break
		}
	}

	// Platform order is newest-first.
	sort.Slice(page, func(i, j int) bool { return page[i].ID.After(page[j].ID) })
	return page, nil
}

func (c *mockSourceClient) Events() <-chan models.SourceMessage {
	return c.events
}

func (c *mockSourceClient) SelfID() string {
	return c.selfID
}

// openGate releases every channel immediately.
type openGate struct{}

func (openGate) Done(string) <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
