package visibility

import (
	"sort"
	"strings"

	"gorm.io/gorm"

	"github.com/d60-Lab/timeline-fanout/internal/model"
)

// Kind tags a rule variant. The numeric order is the evaluation order:
// cheap per-post checks first, relationship lookups next, the visibility
// level last.
type Kind int

const (
	WithFiles Kind = iota
	NoChannel
	AuthorIn
	HideReplies
	HideRenotes
	HideMyRenotes
	HideRenotesOfMine
	HideLocalRenotes
	Blocked
	MutedUser
	MutedRenote
	MutedInstance
	MutedWord
	RequireSignIn
	Visible
)

var kindNames = [...]string{
	"with_files", "no_channel", "author_in", "hide_replies", "hide_renotes",
	"hide_my_renotes", "hide_renotes_of_mine", "hide_local_renotes", "blocked",
	"muted_user", "muted_renote", "muted_instance", "muted_word", "require_sign_in",
	"visible",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

// Rule is one filter variant. Authors is only used by AuthorIn.
type Rule struct {
	Kind    Kind
	Authors IDSet
}

// Of returns a rule without parameters.
func Of(k Kind) Rule { return Rule{Kind: k} }

// Authors restricts posts to the viewer and the given authors.
func Authors(ids IDSet) Rule { return Rule{Kind: AuthorIn, Authors: ids} }

// pureRenote mirrors model.Post.IsPureRenote; notPureRenote is its negation.
const notPureRenote = "(posts.renote_id IS NULL OR posts.text IS NOT NULL OR posts.file_ids <> '' OR posts.has_poll = ?)"

const signInRequired = "(SELECT users.id FROM users WHERE users.require_signin_to_view_contents = ?)"

// Allow evaluates the rule for one post.
func (r Rule) Allow(v *Viewer, p *model.Post) bool {
	switch r.Kind {
	case WithFiles:
		return p.HasFiles()

	case NoChannel:
		return p.ChannelID == nil

	case AuthorIn:
		return (v != nil && p.UserID == v.ID) || r.Authors.Has(p.UserID)

	case HideReplies:
		if p.ReplyID == nil || (v != nil && p.UserID == v.ID) {
			return true
		}
		return p.ReplyUserID != nil && (*p.ReplyUserID == p.UserID || (v != nil && *p.ReplyUserID == v.ID))

	case HideRenotes:
		return !p.IsPureRenote()

	case HideMyRenotes:
		return v == nil || p.UserID != v.ID || !p.IsPureRenote()

	case HideRenotesOfMine:
		return v == nil || p.RenoteUserID == nil || *p.RenoteUserID != v.ID || !p.IsPureRenote()

	case HideLocalRenotes:
		return p.RenoteUserHost != nil || !p.IsPureRenote()

	case Blocked:
		if v == nil {
			return true
		}
		return !v.Blocked.Has(p.UserID) && !hasPtr(v.Blocked, p.ReplyUserID) && !hasPtr(v.Blocked, p.RenoteUserID)

	case MutedUser:
		if v == nil {
			return true
		}
		return !v.Muted.Has(p.UserID) && !hasPtr(v.Muted, p.ReplyUserID) && !hasPtr(v.Muted, p.RenoteUserID)

	case MutedRenote:
		return v == nil || !v.RenoteMuted.Has(p.UserID) || !p.IsPureRenote()

	case MutedInstance:
		if v == nil {
			return true
		}
		return !hasPtr(v.MutedInstances, p.UserHost) && !hasPtr(v.MutedInstances, p.RenoteUserHost)

	case MutedWord:
		if v == nil || p.UserID == v.ID {
			return true
		}
		for _, group := range keywordGroups(v.MutedWords) {
			if matchesAll(p.SearchText, group) {
				return false
			}
		}
		return true

	case RequireSignIn:
		if v != nil {
			return true
		}
		return !requiresSignIn(p.User) && !requiresSignIn(p.ReplyUser) && !requiresSignIn(p.RenoteUser)

	case Visible:
		if v != nil && p.UserID == v.ID {
			return true
		}
		switch p.Visibility {
		case model.VisibilityPublic, model.VisibilityHome:
			return true
		case model.VisibilityFollowers:
			return v != nil && v.Following.Has(p.UserID)
		case model.VisibilitySpecified:
			return v != nil && p.VisibleUserIDs.Contains(v.ID)
		}
		return false
	}
	return false
}

// Apply narrows a query over the posts table so that it returns exactly the
// posts Allow accepts.
func (r Rule) Apply(db *gorm.DB, v *Viewer) *gorm.DB {
	switch r.Kind {
	case WithFiles:
		return db.Where("posts.file_ids <> ''")

	case NoChannel:
		return db.Where("posts.channel_id IS NULL")

	case AuthorIn:
		ids := r.Authors.Slice()
		switch {
		case v != nil && len(ids) > 0:
			return db.Where("(posts.user_id = ? OR posts.user_id IN ?)", v.ID, ids)
		case v != nil:
			return db.Where("posts.user_id = ?", v.ID)
		case len(ids) > 0:
			return db.Where("posts.user_id IN ?", ids)
		}
		return db.Where("1 = 0")

	case HideReplies:
		if v == nil {
			return db.Where("(posts.reply_id IS NULL OR posts.reply_user_id = posts.user_id)")
		}
		return db.Where("(posts.reply_id IS NULL OR posts.reply_user_id = posts.user_id OR posts.reply_user_id = ? OR posts.user_id = ?)", v.ID, v.ID)

	case HideRenotes:
		return db.Where(notPureRenote, true)

	case HideMyRenotes:
		if v == nil {
			return db
		}
		return db.Where("(posts.user_id <> ? OR "+notPureRenote+")", v.ID, true)

	case HideRenotesOfMine:
		if v == nil {
			return db
		}
		return db.Where("(posts.renote_user_id IS NULL OR posts.renote_user_id <> ? OR "+notPureRenote+")", v.ID, true)

	case HideLocalRenotes:
		return db.Where("(posts.renote_user_host IS NOT NULL OR "+notPureRenote+")", true)

	case Blocked:
		if v == nil {
			return db
		}
		return excludeUsers(db, v.Blocked)

	case MutedUser:
		if v == nil {
			return db
		}
		return excludeUsers(db, v.Muted)

	case MutedRenote:
		if v == nil || len(v.RenoteMuted) == 0 {
			return db
		}
		return db.Where("(posts.user_id NOT IN ? OR "+notPureRenote+")", v.RenoteMuted.Slice(), true)

	case MutedInstance:
		if v == nil || len(v.MutedInstances) == 0 {
			return db
		}
		hosts := v.MutedInstances.Slice()
		return db.
			Where("(posts.user_host IS NULL OR posts.user_host NOT IN ?)", hosts).
			Where("(posts.renote_user_host IS NULL OR posts.renote_user_host NOT IN ?)", hosts)

	case MutedWord:
		if v == nil {
			return db
		}
		for _, group := range keywordGroups(v.MutedWords) {
			conds := make([]string, len(group))
			args := []any{v.ID}
			for i, kw := range group {
				conds[i] = `posts.search_text LIKE ? ESCAPE '\'`
				args = append(args, "%"+escapeLike(kw)+"%")
			}
			db = db.Where("(posts.user_id = ? OR NOT ("+strings.Join(conds, " AND ")+"))", args...)
		}
		return db

	case RequireSignIn:
		if v != nil {
			return db
		}
		return db.
			Where("posts.user_id NOT IN "+signInRequired, true).
			Where("(posts.reply_user_id IS NULL OR posts.reply_user_id NOT IN "+signInRequired+")", true).
			Where("(posts.renote_user_id IS NULL OR posts.renote_user_id NOT IN "+signInRequired+")", true)

	case Visible:
		open := []string{string(model.VisibilityPublic), string(model.VisibilityHome)}
		if v == nil {
			return db.Where("posts.visibility IN ?", open)
		}
		sql := "posts.visibility IN ? OR posts.user_id = ?"
		args := []any{open, v.ID}
		if following := v.Following.Slice(); len(following) > 0 {
			sql += " OR (posts.visibility = ? AND posts.user_id IN ?)"
			args = append(args, string(model.VisibilityFollowers), following)
		}
		sql += ` OR (posts.visibility = ? AND posts.visible_user_ids LIKE ? ESCAPE '\')`
		args = append(args, string(model.VisibilitySpecified), "%,"+escapeLike(v.ID)+",%")
		return db.Where("("+sql+")", args...)
	}
	return db.Where("1 = 0")
}

// Set is an ordered list of rules evaluated with short-circuit AND.
type Set []Rule

// NewSet returns the rules sorted into evaluation order.
func NewSet(rules ...Rule) Set {
	s := append(Set(nil), rules...)
	sort.SliceStable(s, func(i, j int) bool { return s[i].Kind < s[j].Kind })
	return s
}

// Base is the visibility, mute and block rule set every timeline applies.
func Base() Set {
	return NewSet(
		Of(Blocked), Of(MutedUser), Of(MutedRenote), Of(MutedInstance),
		Of(MutedWord), Of(RequireSignIn), Of(Visible),
	)
}

// Embedded is applied to the reply and renote targets carried inside a
// post: only the viewer-level checks, none of the timeline toggles.
func Embedded() Set {
	return NewSet(Of(Blocked), Of(MutedUser), Of(Visible))
}

// Redact drops embedded targets the viewer may not see. p is shared with
// other readers and is never modified; a copy is returned when anything
// is dropped.
func Redact(v *Viewer, p *model.Post) *model.Post {
	embedded := Embedded()
	hideReply := p.Reply != nil && !embedded.Allow(v, p.Reply)
	hideRenote := p.Renote != nil && !embedded.Allow(v, p.Renote)
	if !hideReply && !hideRenote {
		return p
	}
	cp := *p
	if hideReply {
		cp.Reply = nil
	}
	if hideRenote {
		cp.Renote = nil
	}
	return &cp
}

// With returns a new set with extra rules merged in order.
func (s Set) With(rules ...Rule) Set {
	return NewSet(append(append([]Rule(nil), s...), rules...)...)
}

// Allow reports whether every rule accepts the post.
func (s Set) Allow(v *Viewer, p *model.Post) bool {
	for _, r := range s {
		if !r.Allow(v, p) {
			return false
		}
	}
	return true
}

// Rejects returns the first rule rejecting the post, for logging.
func (s Set) Rejects(v *Viewer, p *model.Post) (Kind, bool) {
	for _, r := range s {
		if !r.Allow(v, p) {
			return r.Kind, true
		}
	}
	return 0, false
}

// Apply narrows db with every rule.
func (s Set) Apply(db *gorm.DB, v *Viewer) *gorm.DB {
	for _, r := range s {
		db = r.Apply(db, v)
	}
	return db
}

// Scope adapts the set to gorm's Scopes.
func (s Set) Scope(v *Viewer) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB { return s.Apply(db, v) }
}

func excludeUsers(db *gorm.DB, ids IDSet) *gorm.DB {
	if len(ids) == 0 {
		return db
	}
	list := ids.Slice()
	return db.
		Where("posts.user_id NOT IN ?", list).
		Where("(posts.reply_user_id IS NULL OR posts.reply_user_id NOT IN ?)", list).
		Where("(posts.renote_user_id IS NULL OR posts.renote_user_id NOT IN ?)", list)
}

func hasPtr(s IDSet, id *string) bool {
	return id != nil && s.Has(*id)
}

func requiresSignIn(u *model.User) bool {
	return u != nil && u.RequireSigninToViewContents
}

// keywordGroups drops empty keywords and empty groups; an empty keyword
// would otherwise match every post.
func keywordGroups(groups [][]string) [][]string {
	out := make([][]string, 0, len(groups))
	for _, g := range groups {
		kept := make([]string, 0, len(g))
		for _, kw := range g {
			if kw != "" {
				kept = append(kept, kw)
			}
		}
		if len(kept) > 0 {
			out = append(out, kept)
		}
	}
	return out
}

func matchesAll(text string, keywords []string) bool {
	for _, kw := range keywords {
		if !strings.Contains(text, kw) {
			return false
		}
	}
	return true
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }
