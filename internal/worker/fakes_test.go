package worker

import (
	"context"
	"fmt"
	"time"

	"content-tasks/internal/config"
	"content-tasks/internal/database"
	"content-tasks/internal/faults"
	"content-tasks/internal/models"
	"content-tasks/internal/search"
)

type fakeStore struct {
	objects map[string][]byte
	puts    []string
	deletes []string
	putErr  error
	delErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: map[string][]byte{}}
}

func (f *fakeStore) Put(_ context.Context, key string, data []byte, _ string) (string, error) {
	if f.putErr != nil {
		return "", f.putErr
	}
	f.objects[key] = data
	f.puts = append(f.puts, key)
	return "https://files.example.com/" + key, nil
}

func (f *fakeStore) Delete(_ context.Context, key string) error {
	if f.delErr != nil {
		return f.delErr
	}
	delete(f.objects, key)
	f.deletes = append(f.deletes, key)
	return nil
}

type fakeGateway struct {
	users map[string]database.User
	posts map[string]database.Post

	profileUpdates   []*string
	bannerUpdates    []*string
	thumbnailUpdates []*string

	linkErr    error
	cleanupErr error

	expired, revoked int64
	allPosts         []database.Post
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		users: map[string]database.User{},
		posts: map[string]database.Post{},
	}
}

func (f *fakeGateway) GetUserByID(_ context.Context, id string) (database.User, error) {
	u, ok := f.users[id]
	if !ok {
		return database.User{}, faults.NotFound("user %s", id)
	}
	return u, nil
}

func (f *fakeGateway) UpdateUserProfileImage(_ context.Context, id string, url *string) error {
	if f.linkErr != nil {
		return f.linkErr
	}
	u := f.users[id]
	u.ProfileImage = url
	f.users[id] = u
	f.profileUpdates = append(f.profileUpdates, url)
	return nil
}

func (f *fakeGateway) UpdateUserBannerImage(_ context.Context, id string, url *string) error {
	if f.linkErr != nil {
		return f.linkErr
	}
	u := f.users[id]
	u.BannerImage = url
	f.users[id] = u
	f.bannerUpdates = append(f.bannerUpdates, url)
	return nil
}

func (f *fakeGateway) GetPostByID(_ context.Context, id string) (database.Post, error) {
	p, ok := f.posts[id]
	if !ok {
		return database.Post{}, faults.NotFound("post %s", id)
	}
	return p, nil
}

func (f *fakeGateway) UpdatePostThumbnail(_ context.Context, id string, url *string) error {
	if f.linkErr != nil {
		return f.linkErr
	}
	p := f.posts[id]
	p.ThumbnailImage = url
	f.posts[id] = p
	f.thumbnailUpdates = append(f.thumbnailUpdates, url)
	return nil
}

func (f *fakeGateway) CleanupRefreshTokens(_ context.Context, _ time.Time) (int64, int64, error) {
	if f.cleanupErr != nil {
		return 0, 0, f.cleanupErr
	}
	return f.expired, f.revoked, nil
}

func (f *fakeGateway) ListPosts(_ context.Context, limit, offset int) ([]database.Post, error) {
	if offset >= len(f.allPosts) {
		return nil, nil
	}
	end := offset + limit
	if end > len(f.allPosts) {
		end = len(f.allPosts)
	}
	return f.allPosts[offset:end], nil
}

type fakeRenderer struct {
	html  string
	err   error
	calls int
}

func (f *fakeRenderer) Render(_ context.Context, _ string) (models.RenderResult, error) {
	f.calls++
	if f.err != nil {
		return models.RenderResult{}, f.err
	}
	return models.RenderResult{HTMLContent: f.html, TOCItems: []byte("[]")}, nil
}

type fakeCache struct {
	entries map[string]models.RenderResult
	getErr  error
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: map[string]models.RenderResult{}}
}

func (f *fakeCache) Get(_ context.Context, postID string) (models.RenderResult, bool, error) {
	if f.getErr != nil {
		return models.RenderResult{}, false, f.getErr
	}
	r, ok := f.entries[postID]
	return r, ok, nil
}

func (f *fakeCache) Set(_ context.Context, postID string, r models.RenderResult, _ time.Duration) error {
	f.entries[postID] = r
	return nil
}

func (f *fakeCache) Invalidate(_ context.Context, postID string) (bool, error) {
	_, ok := f.entries[postID]
	delete(f.entries, postID)
	return ok, nil
}

type fakeIndex struct {
	batches [][]search.PostDocument
	err     error
}

func (f *fakeIndex) IndexPosts(docs []search.PostDocument) error {
	if f.err != nil {
		return f.err
	}
	f.batches = append(f.batches, docs)
	return nil
}

type testEnv struct {
	handlers *Handlers
	store    *fakeStore
	db       *fakeGateway
	renderer *fakeRenderer
	cache    *fakeCache
	index    *fakeIndex
}

func newTestEnv() *testEnv {
	env := &testEnv{
		store:    newFakeStore(),
		db:       newFakeGateway(),
		renderer: &fakeRenderer{html: "<p>rendered</p>"},
		cache:    newFakeCache(),
		index:    &fakeIndex{},
	}
	env.handlers = NewHandlers(config.Config{}, env.store, env.db, env.renderer, env.cache, env.index, nil, nil)
	return env
}

func strPtr(s string) *string { return &s }

var errBoom = fmt.Errorf("boom")
