// Package access decides whether a principal may act on an owned resource.
// Ownership is binary: the author of a note or comment, and nobody else.
package access

type Action string

const (
	ActionViewList   Action = "view_list"
	ActionViewDetail Action = "view_detail"
	ActionCreate     Action = "create"
	ActionEdit       Action = "edit"
	ActionDelete     Action = "delete"
)

// Principal identifies the caller. The zero value is anonymous.
type Principal struct {
	id string
}

func Authenticated(id string) Principal {
	return Principal{id: id}
}

var Anonymous = Principal{}

func (p Principal) ID() string {
	return p.id
}

func (p Principal) IsAnonymous() bool {
	return p.id == ""
}

// Owned is a resource with an author.
type Owned interface {
	OwnerID() string
}

// Can reports whether p may perform action on res. For ActionCreate and
// ActionViewList res is ignored and may be nil. Callers must surface a
// deny on edit/delete/detail as "not found", never as "forbidden", so a
// non-owner cannot probe for a resource's existence.
func Can(p Principal, action Action, res Owned) bool {
	if p.IsAnonymous() {
		return false
	}
	switch action {
	case ActionCreate, ActionViewList:
		return true
	case ActionViewDetail, ActionEdit, ActionDelete:
		return res != nil && res.OwnerID() == p.id
	default:
		return false
	}
}
