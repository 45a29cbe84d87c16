package visibility

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/d60-Lab/timeline-fanout/internal/model"
)

func str(s string) *string { return &s }

func me() *Viewer {
	return &Viewer{
		ID:        "me",
		Following: NewIDSet("alice", "bob"),
		Mutual:    NewIDSet("alice"),
	}
}

func TestVisibleLevels(t *testing.T) {
	cases := []struct {
		name   string
		viewer *Viewer
		post   model.Post
		want   bool
	}{
		{"public anonymous", nil, model.Post{UserID: "carol", Visibility: model.VisibilityPublic}, true},
		{"home anonymous", nil, model.Post{UserID: "carol", Visibility: model.VisibilityHome}, true},
		{"followers anonymous", nil, model.Post{UserID: "alice", Visibility: model.VisibilityFollowers}, false},
		{"followers by followee", me(), model.Post{UserID: "bob", Visibility: model.VisibilityFollowers}, true},
		{"followers by stranger", me(), model.Post{UserID: "carol", Visibility: model.VisibilityFollowers}, false},
		{"followers by self", me(), model.Post{UserID: "me", Visibility: model.VisibilityFollowers}, true},
		{"specified to me", me(), model.Post{UserID: "carol", Visibility: model.VisibilitySpecified, VisibleUserIDs: model.IDList{"x", "me"}}, true},
		{"specified to others", me(), model.Post{UserID: "alice", Visibility: model.VisibilitySpecified, VisibleUserIDs: model.IDList{"bob"}}, false},
		{"specified by self", me(), model.Post{UserID: "me", Visibility: model.VisibilitySpecified}, true},
		{"specified anonymous", nil, model.Post{UserID: "carol", Visibility: model.VisibilitySpecified, VisibleUserIDs: model.IDList{"me"}}, false},
		{"unknown level", me(), model.Post{UserID: "alice", Visibility: "direct"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Of(Visible).Allow(tc.viewer, &tc.post))
		})
	}
}

func TestRequireSignIn(t *testing.T) {
	gated := &model.User{ID: "gated", RequireSigninToViewContents: true}
	open := &model.User{ID: "open"}

	own := &model.Post{UserID: "gated", User: gated, Visibility: model.VisibilityPublic}
	replyToGated := &model.Post{UserID: "open", User: open, ReplyID: str("r"), ReplyUserID: str("gated"), ReplyUser: gated}
	renoteOfGated := &model.Post{UserID: "open", User: open, RenoteID: str("n"), RenoteUserID: str("gated"), RenoteUser: gated}
	plain := &model.Post{UserID: "open", User: open}

	r := Of(RequireSignIn)
	assert.False(t, r.Allow(nil, own))
	assert.False(t, r.Allow(nil, replyToGated))
	assert.False(t, r.Allow(nil, renoteOfGated))
	assert.True(t, r.Allow(nil, plain))
	assert.True(t, r.Allow(me(), own), "signed-in viewers are not affected")
}

func TestRepliesAndRenotes(t *testing.T) {
	v := me()
	replyToStranger := &model.Post{UserID: "alice", ReplyID: str("x"), ReplyUserID: str("carol")}
	replyToMe := &model.Post{UserID: "alice", ReplyID: str("x"), ReplyUserID: str("me")}
	selfReply := &model.Post{UserID: "alice", ReplyID: str("x"), ReplyUserID: str("alice")}
	myReply := &model.Post{UserID: "me", ReplyID: str("x"), ReplyUserID: str("carol")}

	hide := Of(HideReplies)
	assert.False(t, hide.Allow(v, replyToStranger))
	assert.True(t, hide.Allow(v, replyToMe))
	assert.True(t, hide.Allow(v, selfReply))
	assert.True(t, hide.Allow(v, myReply))

	pure := &model.Post{UserID: "alice", RenoteID: str("n"), RenoteUserID: str("me")}
	quote := &model.Post{UserID: "alice", RenoteID: str("n"), RenoteUserID: str("me"), Text: str("look")}
	withFile := &model.Post{UserID: "alice", RenoteID: str("n"), FileIDs: model.IDList{"f1"}}

	assert.False(t, Of(HideRenotes).Allow(v, pure))
	assert.True(t, Of(HideRenotes).Allow(v, quote))
	assert.True(t, Of(HideRenotes).Allow(v, withFile))
	assert.False(t, Of(HideRenotesOfMine).Allow(v, pure))
	assert.True(t, Of(HideRenotesOfMine).Allow(v, quote))
	assert.False(t, Of(HideLocalRenotes).Allow(v, pure))

	remote := &model.Post{UserID: "alice", RenoteID: str("n"), RenoteUserHost: str("remote.example")}
	assert.True(t, Of(HideLocalRenotes).Allow(v, remote))

	mine := &model.Post{UserID: "me", RenoteID: str("n")}
	assert.False(t, Of(HideMyRenotes).Allow(v, mine))
	assert.True(t, Of(HideMyRenotes).Allow(v, pure))
}

func TestMuteAndBlock(t *testing.T) {
	v := me()
	v.Blocked = NewIDSet("dave")
	v.Muted = NewIDSet("erin")
	v.RenoteMuted = NewIDSet("frank")
	v.MutedInstances = NewIDSet("spam.example")
	v.MutedWords = [][]string{{"spoiler"}, {"cat", "dog"}, {""}}

	base := Base()
	post := func(p model.Post) *model.Post {
		if p.Visibility == "" {
			p.Visibility = model.VisibilityPublic
		}
		return &p
	}

	assert.False(t, base.Allow(v, post(model.Post{UserID: "dave"})))
	assert.False(t, base.Allow(v, post(model.Post{UserID: "alice", ReplyID: str("x"), ReplyUserID: str("dave")})))
	assert.False(t, base.Allow(v, post(model.Post{UserID: "alice", RenoteID: str("x"), RenoteUserID: str("erin")})))
	assert.False(t, base.Allow(v, post(model.Post{UserID: "frank", RenoteID: str("x")})))
	assert.True(t, base.Allow(v, post(model.Post{UserID: "frank", RenoteID: str("x"), Text: str("quote")})))
	assert.False(t, base.Allow(v, post(model.Post{UserID: "carol", UserHost: str("spam.example")})))
	assert.False(t, base.Allow(v, post(model.Post{UserID: "carol", SearchText: "big spoiler ahead"})))
	assert.False(t, base.Allow(v, post(model.Post{UserID: "carol", SearchText: "my cat and dog"})))
	assert.True(t, base.Allow(v, post(model.Post{UserID: "carol", SearchText: "just a cat"})))
	assert.True(t, base.Allow(v, post(model.Post{UserID: "me", SearchText: "my own spoiler"})))

	kind, rejected := base.Rejects(v, post(model.Post{UserID: "dave", SearchText: "spoiler"}))
	assert.True(t, rejected)
	assert.Equal(t, Blocked, kind, "block is checked before muted words")
}

func TestAuthorIn(t *testing.T) {
	v := me()
	r := Authors(v.Mutual)
	assert.True(t, r.Allow(v, &model.Post{UserID: "me"}))
	assert.True(t, r.Allow(v, &model.Post{UserID: "alice"}))
	assert.False(t, r.Allow(v, &model.Post{UserID: "bob"}))
	assert.False(t, Authors(nil).Allow(nil, &model.Post{UserID: "alice"}))
}

func TestSetOrderAndDeterminism(t *testing.T) {
	s := NewSet(Of(Visible), Of(WithFiles), Of(Blocked), Of(NoChannel))
	kinds := make([]Kind, len(s))
	for i, r := range s {
		kinds[i] = r.Kind
	}
	assert.Equal(t, []Kind{WithFiles, NoChannel, Blocked, Visible}, kinds)

	v := me()
	p := &model.Post{UserID: "bob", Visibility: model.VisibilityFollowers, FileIDs: model.IDList{"f"}}
	first := s.Allow(v, p)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, s.Allow(v, p))
	}
	assert.Equal(t, "no_channel", NoChannel.String())
}

func TestRedactEmbedded(t *testing.T) {
	v := me()
	v.Muted = NewIDSet("mallory")
	open := &model.Post{ID: "p1", UserID: "carol", Visibility: model.VisibilityPublic}
	hidden := &model.Post{ID: "p2", UserID: "carol", Visibility: model.VisibilitySpecified, VisibleUserIDs: model.IDList{"bob"}}
	followers := &model.Post{ID: "p3", UserID: "carol", Visibility: model.VisibilityFollowers}
	muted := &model.Post{ID: "p4", UserID: "mallory", Visibility: model.VisibilityPublic}

	quote := &model.Post{ID: "q", UserID: "alice", Text: str("look"), RenoteID: &hidden.ID, Renote: hidden, ReplyID: &open.ID, Reply: open}
	got := Redact(v, quote)
	assert.NotSame(t, quote, got)
	assert.Nil(t, got.Renote)
	assert.Same(t, open, got.Reply)
	assert.Same(t, hidden, quote.Renote, "the original post stays untouched")

	reply := &model.Post{ID: "r", UserID: "alice", ReplyID: &followers.ID, Reply: followers}
	assert.Nil(t, Redact(v, reply).Reply)
	assert.Nil(t, Redact(v, &model.Post{ID: "m", UserID: "alice", Renote: muted}).Renote)

	plain := &model.Post{ID: "ok", UserID: "alice", Renote: open}
	assert.Same(t, plain, Redact(v, plain), "nothing dropped, no copy")

	// 自己能看自己的帖子
	mine := &model.Post{ID: "p5", UserID: "me", Visibility: model.VisibilitySpecified}
	assert.NotNil(t, Redact(v, &model.Post{ID: "x", UserID: "alice", Renote: mine}).Renote)
}
