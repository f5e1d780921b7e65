package database

import (
	"context"
	"strings"
	"sync"
	"time"

	"gator-press/internal/models"
	"gator-press/internal/utils"

	"github.com/google/uuid"
)

// MemoryDB keeps everything in process memory. It backs DB_TYPE=memory and
// the test suites.
type MemoryDB struct {
	mu sync.RWMutex

	posts     map[uuid.UUID]*models.Post
	postOrder []uuid.UUID
	notes     map[uuid.UUID][]*models.Note
	history   map[uuid.UUID][]*models.StatusChange
	likeKeys  map[uuid.UUID]map[string]bool

	rejections map[time.Time]int
	snapshots  []*models.Analytics

	users        map[uuid.UUID]*models.User
	usersByEmail map[string]uuid.UUID
	usersByName  map[string]uuid.UUID
}

func NewMemoryDB() *MemoryDB {
	return &MemoryDB{
		posts:        make(map[uuid.UUID]*models.Post),
		notes:        make(map[uuid.UUID][]*models.Note),
		history:      make(map[uuid.UUID][]*models.StatusChange),
		likeKeys:     make(map[uuid.UUID]map[string]bool),
		rejections:   make(map[time.Time]int),
		users:        make(map[uuid.UUID]*models.User),
		usersByEmail: make(map[string]uuid.UUID),
		usersByName:  make(map[string]uuid.UUID),
	}
}

func (m *MemoryDB) Close(ctx context.Context) error {
	return nil
}

// --- Post Methods ---

func (m *MemoryDB) CreatePost(ctx context.Context, post *models.Post) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.posts[post.ID]; exists {
		return utils.NewAppError(utils.ErrDuplicate, "post already exists", nil)
	}
	m.posts[post.ID] = post.Clone()
	m.postOrder = append(m.postOrder, post.ID)
	return nil
}

func (m *MemoryDB) GetPost(ctx context.Context, id uuid.UUID) (*models.Post, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	post, ok := m.posts[id]
	if !ok {
		return nil, utils.NewNotFoundError("post", id)
	}
	return post.Clone(), nil
}

func (m *MemoryDB) ListPosts(ctx context.Context, filter models.PostFilter) ([]*models.Post, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	posts := make([]*models.Post, 0, len(m.postOrder))
	for _, id := range m.postOrder {
		post, ok := m.posts[id]
		if !ok || !filter.Matches(post) {
			continue
		}
		posts = append(posts, post.Clone())
	}
	return posts, nil
}

// lockedPost returns the stored post after checking its status. Callers hold m.mu.
func (m *MemoryDB) lockedPost(id uuid.UUID, expect models.PostStatus) (*models.Post, error) {
	post, ok := m.posts[id]
	if !ok {
		return nil, utils.NewNotFoundError("post", id)
	}
	if post.Status != expect {
		return nil, utils.NewAppError(utils.ErrInvalidTransition,
			"post status changed: expected "+string(expect)+", found "+string(post.Status), nil)
	}
	return post, nil
}

func (m *MemoryDB) UpdatePostContent(ctx context.Context, id uuid.UUID, expect models.PostStatus, title, content string, at time.Time) (*models.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	post, err := m.lockedPost(id, expect)
	if err != nil {
		return nil, err
	}
	post.Title = title
	post.Content = content
	post.UpdatedAt = at
	return post.Clone(), nil
}

func (m *MemoryDB) TransitionPost(ctx context.Context, id uuid.UUID, expect, to models.PostStatus, changes []models.StatusChange) (*models.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	post, err := m.lockedPost(id, expect)
	if err != nil {
		return nil, err
	}
	post.Status = to
	for i := range changes {
		change := changes[i]
		change.PostID = id
		m.history[id] = append(m.history[id], &change)
		post.UpdatedAt = change.At
	}
	return post.Clone(), nil
}

func (m *MemoryDB) DeletePost(ctx context.Context, id uuid.UUID, expect models.PostStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.lockedPost(id, expect); err != nil {
		return err
	}
	delete(m.posts, id)
	delete(m.notes, id)
	delete(m.history, id)
	delete(m.likeKeys, id)
	for i, existing := range m.postOrder {
		if existing == id {
			m.postOrder = append(m.postOrder[:i], m.postOrder[i+1:]...)
			break
		}
	}
	return nil
}

func (m *MemoryDB) IncrementLikes(ctx context.Context, id uuid.UUID, dedupKey string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	post, ok := m.posts[id]
	if !ok {
		return 0, utils.NewNotFoundError("post", id)
	}
	if dedupKey != "" {
		if m.likeKeys[id] == nil {
			m.likeKeys[id] = make(map[string]bool)
		}
		if m.likeKeys[id][dedupKey] {
			return post.Likes, nil
		}
		m.likeKeys[id][dedupKey] = true
	}
	post.Likes++
	return post.Likes, nil
}

func (m *MemoryDB) CountPostsByStatus(ctx context.Context) (map[models.PostStatus]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[models.PostStatus]int, len(models.LiveStatuses))
	for _, post := range m.posts {
		counts[post.Status]++
	}
	return counts, nil
}

// --- Comment and Feedback Methods ---

func (m *MemoryDB) AddNote(ctx context.Context, note *models.Note) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.posts[note.PostID]; !ok {
		return utils.NewNotFoundError("post", note.PostID)
	}
	cp := *note
	m.notes[note.PostID] = append(m.notes[note.PostID], &cp)
	return nil
}

func (m *MemoryDB) GetNotes(ctx context.Context, postID uuid.UUID, channel models.NoteChannel) ([]*models.Note, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.posts[postID]; !ok {
		return nil, utils.NewNotFoundError("post", postID)
	}
	notes := make([]*models.Note, 0)
	for _, note := range m.notes[postID] {
		if note.Channel == channel {
			cp := *note
			notes = append(notes, &cp)
		}
	}
	return notes, nil
}

// --- History Methods ---

func (m *MemoryDB) GetStatusHistory(ctx context.Context, postID uuid.UUID) ([]*models.StatusChange, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.posts[postID]; !ok {
		return nil, utils.NewNotFoundError("post", postID)
	}
	history := make([]*models.StatusChange, 0, len(m.history[postID]))
	for _, change := range m.history[postID] {
		cp := *change
		history = append(history, &cp)
	}
	return history, nil
}

// --- Analytics Methods ---

func (m *MemoryDB) RecordRejection(ctx context.Context, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejections[dayStart(at)]++
	return nil
}

func (m *MemoryDB) CountRejections(ctx context.Context, since time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	from := dayStart(since)
	total := 0
	for day, count := range m.rejections {
		if since.IsZero() || !day.Before(from) {
			total += count
		}
	}
	return total, nil
}

func (m *MemoryDB) SaveAnalyticsSnapshot(ctx context.Context, snapshot *models.Analytics) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *snapshot
	m.snapshots = append(m.snapshots, &cp)
	return nil
}

func (m *MemoryDB) GetLatestAnalyticsSnapshot(ctx context.Context) (*models.Analytics, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.snapshots) == 0 {
		return nil, utils.NewAppError(utils.ErrNotFound, "no analytics snapshot saved", nil)
	}
	cp := *m.snapshots[len(m.snapshots)-1]
	return &cp, nil
}

// --- User Methods ---

func (m *MemoryDB) SaveUser(ctx context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	email := strings.ToLower(user.Email)
	name := strings.ToLower(user.Username)
	if id, ok := m.usersByEmail[email]; ok && id != user.ID {
		return utils.NewAppError(utils.ErrDuplicate, "user already exists: email", nil)
	}
	if id, ok := m.usersByName[name]; ok && id != user.ID {
		return utils.NewAppError(utils.ErrDuplicate, "user already exists: username", nil)
	}

	now := time.Now()
	user.UpdatedAt = now
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	cp := *user
	m.users[user.ID] = &cp
	m.usersByEmail[email] = user.ID
	m.usersByName[name] = user.ID
	return nil
}

func (m *MemoryDB) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	user, ok := m.users[id]
	if !ok {
		return nil, utils.NewNotFoundError("user", id)
	}
	cp := *user
	return &cp, nil
}

func (m *MemoryDB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.usersByEmail[strings.ToLower(email)]
	if !ok {
		return nil, utils.NewAppError(utils.ErrNotFound, "user not found", nil)
	}
	cp := *m.users[id]
	return &cp, nil
}

func (m *MemoryDB) UpdateUserRole(ctx context.Context, id uuid.UUID, role models.Role) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[id]
	if !ok {
		return nil, utils.NewNotFoundError("user", id)
	}
	user.Role = role
	user.UpdatedAt = time.Now()
	cp := *user
	return &cp, nil
}
