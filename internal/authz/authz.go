// Package authz implements the authorization engine (§4.5): firewall
// ACLs intersected with resource ACLs, the latter carrying ancestral
// inheritance for ownership and subtree-* grants. Grounded on the
// teacher's authn/utils.go Token.CheckPermissions two-level (cluster
// then bucket) permission check, adapted from a flat cluster/bucket
// pair to Hatrac's arbitrarily deep namespace chain.
package authz

import (
	"github.com/informatics-isi-edu/hatrac/internal/cmn"
	"github.com/informatics-isi-edu/hatrac/internal/cmn/cos"
	"github.com/informatics-isi-edu/hatrac/internal/herr"
	"github.com/informatics-isi-edu/hatrac/internal/model"
)

// Action names the operation being authorized, used to pick the
// relevant firewall ACL and resource access name.
type Action string

const (
	ActionCreate     Action = "create"
	ActionRead       Action = "read"
	ActionUpdate     Action = "update"
	ActionDelete     Action = "delete"
	ActionManageACLs Action = "manage_acls"
	ActionManageMeta Action = "manage_metadata"
)

// resourceAccessFor maps an Action onto the ACL access-name it consults
// on the resource/ancestor chain (§3 ACL, §4.5 item 2). Ownership and
// management actions use fixed names; read/update use the action name
// itself ("read"/"update", and "subtree-read"/"subtree-update" on
// ancestors) so the ACL keys match the names §3 documents.
func resourceAccessFor(a Action) string {
	switch a {
	case ActionRead:
		return "read"
	case ActionUpdate:
		return "update"
	default:
		return string(a)
	}
}

// Engine evaluates authorized(action, resource) -> bool (§4.5).
type Engine struct {
	Firewall cmn.FirewallACLs
}

func New(fw cmn.FirewallACLs) *Engine {
	return &Engine{Firewall: fw}
}

// Chain is the ACL evaluation context for one resource: its own ACL,
// and root-to-parent ancestor namespace ACLs for subtree-* and
// ownership inheritance (§4.5 item 2, "Ownership... at any ancestor
// grants all access").
type Chain struct {
	Own       model.ACL
	Ancestors []model.ACL // root to immediate parent
}

func isOwner(acl model.ACL, roles cos.StringSet) bool {
	return roles.Intersects(cos.NewStringSet(acl["owner"]...))
}

// authorizedOwner reports whether roles own resource at any level of
// the chain, checking the resource's own "owner" list and every
// ancestor's "subtree-owner" list.
func (c Chain) authorizedOwner(roles cos.StringSet) bool {
	if isOwner(c.Own, roles) {
		return true
	}
	for _, anc := range c.Ancestors {
		if roles.Intersects(cos.NewStringSet(anc["subtree-owner"]...)) {
			return true
		}
	}
	return false
}

// authorizedAccess reports whether roles hold access (e.g. "read") on
// the resource directly, or via a subtree-access grant on any ancestor,
// checked nearest first (§4.5).
func (c Chain) authorizedAccess(access string, roles cos.StringSet) bool {
	if roles.Intersects(cos.NewStringSet(c.Own[access]...)) {
		return true
	}
	subtreeKey := "subtree-" + access
	for i := len(c.Ancestors) - 1; i >= 0; i-- {
		if roles.Intersects(cos.NewStringSet(c.Ancestors[i][subtreeKey]...)) {
			return true
		}
	}
	return false
}

// Check implements authorized(action, resource) (§4.5): the firewall
// ACL must allow the action (when applicable), AND the resource chain
// must grant it — either through ownership (which subsumes every
// action) or through the action's specific access/subtree-access.
func (e *Engine) Check(action Action, chain Chain, roles []string) error {
	rs := cos.NewStringSet(roles...)

	switch action {
	case ActionCreate:
		if !e.Firewall.AllowsCreate(roles) {
			return herr.Forbidden("firewall ACL does not allow create")
		}
	case ActionDelete:
		if !e.Firewall.AllowsDelete(roles) {
			return herr.Forbidden("firewall ACL does not allow delete")
		}
	case ActionManageACLs:
		if !e.Firewall.AllowsManageACLs(roles) {
			return herr.Forbidden("firewall ACL does not allow managing ACLs")
		}
	case ActionManageMeta:
		if !e.Firewall.AllowsManageMeta(roles) {
			return herr.Forbidden("firewall ACL does not allow managing metadata")
		}
	}

	if chain.authorizedOwner(rs) {
		return nil
	}
	switch action {
	case ActionManageACLs, ActionManageMeta, ActionDelete:
		// these require ownership once the firewall gate above passes,
		// matching the teacher's "admin-equivalent bypasses, everyone else
		// needs the specific grant" shape but scoped to ownership here
		// since Hatrac has no separate "manage" resource ACL (§4.5).
		return herr.Forbidden("only an owner may %s this resource", action)
	}
	access := resourceAccessFor(action)
	if chain.authorizedAccess(access, rs) {
		return nil
	}
	return herr.Forbidden("no %s access on this resource", access)
}

// CheckOwnerRemains implements "PUT on an ACL that would leave no
// authorized owner is rejected (400)" (§4.5): Hatrac's
// interpretation is that this applies to the
// resource's own owner list specifically, independent of ancestor
// subtree-owner grants — a resource can always lose its ancestor-level
// ownership reach, but never be left with zero owners of record.
func CheckOwnerRemains(newOwners []string) error {
	if len(newOwners) == 0 {
		return herr.BadRequest("an ACL update must not leave a resource with no owner")
	}
	return nil
}
