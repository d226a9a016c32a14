package activity

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAPI is an in-memory social service. Likes are tracked per post so that
// FetchUsersWithNoLikes behaves like the real least_favorite query.
type fakeAPI struct {
	nextUserID uint
	nextPostID uint

	users []*User
	posts map[uint][]*Post
	likes map[uint]map[uint]bool // post id -> liker ids

	createUserCalls int
	tokenCalls      []string
	likeCalls       map[string]int
	liked           []uint
	fetchPostCalls  int

	// noLikes overrides the candidate list when set.
	noLikes     func(acting *User) []*User
	failCreate  error
	failLikeFor string
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		posts:     make(map[uint][]*Post),
		likes:     make(map[uint]map[uint]bool),
		likeCalls: make(map[string]int),
	}
}

func (f *fakeAPI) CreateUser(context.Context) (*User, error) {
	f.createUserCalls++
	if f.failCreate != nil {
		return nil, f.failCreate
	}
	f.nextUserID++
	u := &User{ID: f.nextUserID, Username: fmt.Sprintf("user%d", f.nextUserID), Password: "secret"}
	f.users = append(f.users, u)
	return u, nil
}

func (f *fakeAPI) FetchSessionToken(_ context.Context, user *User) error {
	f.tokenCalls = append(f.tokenCalls, user.Username)
	user.Token = &Token{Access: "a-" + user.Username, Refresh: "r-" + user.Username}
	return nil
}

func (f *fakeAPI) CreatePostsForUser(ctx context.Context, user *User, count int) error {
	user.Posts = nil
	if err := f.FetchSessionToken(ctx, user); err != nil {
		return err
	}
	for i := 0; i < count; i++ {
		f.nextPostID++
		p := &Post{ID: f.nextPostID, CreatorID: user.ID, Data: "hello"}
		user.Posts = append(user.Posts, p)
		f.posts[user.ID] = append(f.posts[user.ID], p)
	}
	return nil
}

func (f *fakeAPI) FetchPostsForUser(_ context.Context, target, _ *User) ([]*Post, error) {
	f.fetchPostCalls++
	return f.posts[target.ID], nil
}

func (f *fakeAPI) FetchUsersWithNoLikes(_ context.Context, acting *User) ([]*User, error) {
	if f.noLikes != nil {
		return f.noLikes(acting), nil
	}
	var out []*User
	for _, u := range f.users {
		posts := f.posts[u.ID]
		if len(posts) == 0 {
			continue
		}
		liked := false
		for _, p := range posts {
			if len(f.likes[p.ID]) > 0 {
				liked = true
				break
			}
		}
		if !liked {
			out = append(out, &User{ID: u.ID, Username: u.Username})
		}
	}
	return out, nil
}

func (f *fakeAPI) LikePost(_ context.Context, acting *User, post *Post) error {
	if post == nil || post.ID == 0 {
		return nil
	}
	if acting.Username == f.failLikeFor {
		return errors.New("boom")
	}
	f.likeCalls[acting.Username]++
	f.liked = append(f.liked, post.ID)
	if f.likes[post.ID] == nil {
		f.likes[post.ID] = make(map[uint]bool)
	}
	f.likes[post.ID][acting.ID] = true
	return nil
}

func newSimulator(api SocialAPI, policy Policy) *Simulator {
	return &Simulator{
		API:             api,
		Rand:            rand.New(rand.NewSource(1)),
		Logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
		EmptyCandidates: policy,
	}
}

func userWithPosts(id uint, n int) *User {
	u := &User{ID: id, Username: fmt.Sprintf("u%d", id)}
	for i := 0; i < n; i++ {
		u.Posts = append(u.Posts, &Post{ID: id*100 + uint(i), CreatorID: id})
	}
	return u
}

func TestSignUpUsers(t *testing.T) {
	api := newFakeAPI()
	sim := newSimulator(api, HaltOnEmpty)

	users, err := sim.SignUpUsers(context.Background(), 4)
	require.NoError(t, err)
	require.Len(t, users, 4)
	assert.Equal(t, 4, api.createUserCalls)
	for i, u := range users {
		assert.Equal(t, uint(i+1), u.ID)
	}
}

func TestSignUpUsers_StopsOnFirstFailure(t *testing.T) {
	api := newFakeAPI()
	api.failCreate = errors.New("service down")
	sim := newSimulator(api, HaltOnEmpty)

	users, err := sim.SignUpUsers(context.Background(), 5)
	require.Error(t, err)
	assert.Empty(t, users)
	assert.Equal(t, 1, api.createUserCalls)
}

func TestCreatePosts_CountsWithinBounds(t *testing.T) {
	api := newFakeAPI()
	sim := newSimulator(api, HaltOnEmpty)
	ctx := context.Background()

	users, err := sim.SignUpUsers(ctx, 25)
	require.NoError(t, err)

	total, err := sim.CreatePosts(ctx, users, 3)
	require.NoError(t, err)

	sum := 0
	for _, u := range users {
		assert.GreaterOrEqual(t, len(u.Posts), 1)
		assert.LessOrEqual(t, len(u.Posts), 3)
		sum += len(u.Posts)
	}
	assert.Equal(t, sum, total)
}

func TestLikePosts_DescendingPostCountOrder(t *testing.T) {
	api := newFakeAPI()
	api.noLikes = func(*User) []*User { return []*User{{ID: 99}} }
	api.posts[99] = []*Post{{ID: 990, CreatorID: 99}}
	sim := newSimulator(api, HaltOnEmpty)

	users := []*User{userWithPosts(1, 1), userWithPosts(2, 5), userWithPosts(3, 3)}
	res, err := sim.LikePosts(context.Background(), users, 1)
	require.NoError(t, err)

	assert.Equal(t, []string{"u2", "u3", "u1"}, api.tokenCalls)
	assert.Equal(t, 3, res.Likes)
	assert.Equal(t, 3, res.ActingUsers)
	assert.False(t, res.Halted)
}

func TestLikePosts_TiesKeepStableOrder(t *testing.T) {
	api := newFakeAPI()
	api.noLikes = func(*User) []*User { return []*User{{ID: 99}} }
	api.posts[99] = []*Post{{ID: 990, CreatorID: 99}}
	sim := newSimulator(api, HaltOnEmpty)

	// A=2, B=1, C=2: the later of the tied users acts first.
	users := []*User{userWithPosts(1, 2), userWithPosts(2, 1), userWithPosts(3, 2)}
	_, err := sim.LikePosts(context.Background(), users, 1)
	require.NoError(t, err)

	assert.Equal(t, []string{"u3", "u1", "u2"}, api.tokenCalls)
	assert.Equal(t, 2, len(users[0].Posts), "input slice must not be reordered")
}

func TestLikePosts_HaltOnEmpty(t *testing.T) {
	api := newFakeAPI()
	api.noLikes = func(*User) []*User { return nil }
	sim := newSimulator(api, HaltOnEmpty)

	users := []*User{userWithPosts(1, 1), userWithPosts(2, 2), userWithPosts(3, 3)}
	res, err := sim.LikePosts(context.Background(), users, 2)
	require.NoError(t, err)

	assert.True(t, res.Halted)
	assert.Equal(t, 1, res.ActingUsers)
	assert.Equal(t, []string{"u3"}, api.tokenCalls)
	assert.Zero(t, res.Likes)
}

func TestLikePosts_SkipOnEmpty(t *testing.T) {
	api := newFakeAPI()
	api.posts[7] = []*Post{{ID: 70, CreatorID: 7}}
	api.noLikes = func(acting *User) []*User {
		if acting.ID == 3 {
			return nil
		}
		return []*User{{ID: 7}}
	}
	sim := newSimulator(api, SkipOnEmpty)

	users := []*User{userWithPosts(1, 1), userWithPosts(2, 2), userWithPosts(3, 3)}
	res, err := sim.LikePosts(context.Background(), users, 1)
	require.NoError(t, err)

	assert.False(t, res.Halted)
	assert.Equal(t, 3, res.ActingUsers)
	assert.Equal(t, 2, res.Likes)
	assert.Zero(t, api.likeCalls["u3"])
}

func TestLikePosts_BudgetAndEmptyCandidates(t *testing.T) {
	api := newFakeAPI()
	// Candidate 5 has no posts, candidate 6 has one.
	api.posts[6] = []*Post{{ID: 60, CreatorID: 6}}
	api.noLikes = func(*User) []*User { return []*User{{ID: 5}, {ID: 6}} }
	sim := newSimulator(api, HaltOnEmpty)

	res, err := sim.LikePosts(context.Background(), []*User{userWithPosts(1, 1)}, 3)
	require.NoError(t, err)

	assert.Equal(t, 3, res.Likes)
	assert.Equal(t, 3, api.likeCalls["u1"])
	// 5, 6, 5, 6, 5, 6: empty candidates are visited but never spend budget.
	assert.Equal(t, 6, api.fetchPostCalls)
}

func TestLikePosts_PicksPostsWithSeededRand(t *testing.T) {
	const seed = 42
	api := newFakeAPI()
	author := &User{ID: 7, Username: "author"}
	require.NoError(t, api.CreatePostsForUser(context.Background(), author, 5))
	api.noLikes = func(*User) []*User { return []*User{author} }

	sim := newSimulator(api, HaltOnEmpty)
	sim.Rand = rand.New(rand.NewSource(seed))
	liker := &User{ID: 1, Username: "liker"}

	res, err := sim.LikePosts(context.Background(), []*User{liker}, 6)
	require.NoError(t, err)
	assert.Equal(t, 6, res.Likes)

	replay := rand.New(rand.NewSource(seed))
	want := make([]uint, 0, 6)
	for i := 0; i < 6; i++ {
		want = append(want, author.Posts[replay.Intn(len(author.Posts))].ID)
	}
	assert.Equal(t, want, api.liked)
}

func TestLikePosts_SinglePostTakesWholeBudget(t *testing.T) {
	api := newFakeAPI()
	author := &User{ID: 7, Username: "author"}
	require.NoError(t, api.CreatePostsForUser(context.Background(), author, 1))
	api.noLikes = func(*User) []*User { return []*User{author} }

	sim := newSimulator(api, HaltOnEmpty)
	res, err := sim.LikePosts(context.Background(), []*User{{ID: 1, Username: "liker"}}, 3)
	require.NoError(t, err)

	assert.Equal(t, 3, res.Likes)
	postID := author.Posts[0].ID
	assert.Equal(t, []uint{postID, postID, postID}, api.liked)
	assert.Equal(t, 3, api.fetchPostCalls)
}

func TestLikePosts_MaxCandidateAttempts(t *testing.T) {
	api := newFakeAPI()
	api.noLikes = func(*User) []*User { return []*User{{ID: 5}} }
	sim := newSimulator(api, HaltOnEmpty)
	sim.MaxCandidateAttempts = 4

	users := []*User{userWithPosts(1, 1), userWithPosts(2, 2)}
	res, err := sim.LikePosts(context.Background(), users, 1)
	require.NoError(t, err)

	assert.Zero(t, res.Likes)
	assert.Equal(t, 2, res.ActingUsers)
	assert.Equal(t, 8, api.fetchPostCalls)
}

func TestLikePosts_CancelledContextEndsUnboundedLoop(t *testing.T) {
	api := newFakeAPI()
	api.noLikes = func(*User) []*User { return []*User{{ID: 5}} }
	sim := newSimulator(api, HaltOnEmpty)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := sim.LikePosts(ctx, []*User{userWithPosts(1, 1)}, 1)
	require.ErrorIs(t, err, context.Canceled)
}

func TestLikePosts_LikeFailureAborts(t *testing.T) {
	api := newFakeAPI()
	api.posts[9] = []*Post{{ID: 90, CreatorID: 9}}
	api.noLikes = func(*User) []*User { return []*User{{ID: 9}} }
	api.failLikeFor = "u2"
	sim := newSimulator(api, HaltOnEmpty)

	users := []*User{userWithPosts(1, 1), userWithPosts(2, 2)}
	res, err := sim.LikePosts(context.Background(), users, 1)
	require.Error(t, err)
	assert.Equal(t, 1, res.ActingUsers)
	assert.Zero(t, api.likeCalls["u1"])
}

func TestRun_EveryUserGetsLiked(t *testing.T) {
	api := newFakeAPI()
	sim := newSimulator(api, SkipOnEmpty)

	report, err := sim.Run(context.Background(), &Config{NumberOfUsers: 3, MaxPostsPerUser: 2, MaxLikesPerUser: 1})
	require.NoError(t, err)

	assert.Equal(t, 3, report.UsersCreated)
	assert.Equal(t, 3, api.createUserCalls)
	assert.GreaterOrEqual(t, report.PostsCreated, 3)
	assert.LessOrEqual(t, report.PostsCreated, 6)
	for name, n := range api.likeCalls {
		assert.LessOrEqual(t, n, 1, name)
	}

	left, err := api.FetchUsersWithNoLikes(context.Background(), api.users[0])
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestRun_InvalidConfig(t *testing.T) {
	api := newFakeAPI()
	sim := newSimulator(api, HaltOnEmpty)

	_, err := sim.Run(context.Background(), &Config{NumberOfUsers: 3, MaxPostsPerUser: 0, MaxLikesPerUser: 1})
	require.ErrorIs(t, err, ErrInvalidConfig)
	assert.Zero(t, api.createUserCalls)
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("skip")
	require.NoError(t, err)
	assert.Equal(t, SkipOnEmpty, p)

	p, err = ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, HaltOnEmpty, p)

	_, err = ParsePolicy("retry")
	assert.Error(t, err)
	assert.Equal(t, "halt", HaltOnEmpty.String())
}
