package access

import "testing"

type owned string

func (o owned) OwnerID() string { return string(o) }

func TestCan(t *testing.T) {
	author := Authenticated("user-1")
	reader := Authenticated("user-2")

	cases := []struct {
		name      string
		principal Principal
		action    Action
		resource  Owned
		allow     bool
	}{
		{name: "anonymous create", principal: Anonymous, action: ActionCreate, allow: false},
		{name: "authenticated create", principal: author, action: ActionCreate, allow: true},
		{name: "anonymous list", principal: Anonymous, action: ActionViewList, allow: false},
		{name: "authenticated list", principal: reader, action: ActionViewList, allow: true},
		{name: "author edit", principal: author, action: ActionEdit, resource: owned("user-1"), allow: true},
		{name: "reader edit", principal: reader, action: ActionEdit, resource: owned("user-1"), allow: false},
		{name: "author delete", principal: author, action: ActionDelete, resource: owned("user-1"), allow: true},
		{name: "reader delete", principal: reader, action: ActionDelete, resource: owned("user-1"), allow: false},
		{name: "author detail", principal: author, action: ActionViewDetail, resource: owned("user-1"), allow: true},
		{name: "reader detail", principal: reader, action: ActionViewDetail, resource: owned("user-1"), allow: false},
		{name: "anonymous edit", principal: Anonymous, action: ActionEdit, resource: owned("user-1"), allow: false},
		{name: "edit without resource", principal: author, action: ActionEdit, allow: false},
		{name: "unknown action", principal: author, action: Action("merge"), resource: owned("user-1"), allow: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Can(tc.principal, tc.action, tc.resource); got != tc.allow {
				t.Fatalf("Can(%q, %q) = %v, want %v", tc.principal.ID(), tc.action, got, tc.allow)
			}
		})
	}
}

func TestPrincipalEqualityByID(t *testing.T) {
	if Authenticated("user-1") != Authenticated("user-1") {
		t.Fatal("principals with the same id must compare equal")
	}
	if Authenticated("user-1") == Authenticated("user-2") {
		t.Fatal("principals with different ids must not compare equal")
	}
	if !Anonymous.IsAnonymous() {
		t.Fatal("zero principal must be anonymous")
	}
}
