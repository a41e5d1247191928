// Package engine computes and executes the reconciliation between the LDAP
// candidate set and the VaultWarden organisation membership.
package engine

import (
	"sort"

	"github.com/vwsync/vwldap-sync/pkg/directory"
	"github.com/vwsync/vwldap-sync/pkg/vaultwarden"
)

// Op is the kind of membership change.
type Op int

const (
	OpInvite Op = iota
	OpRestore
	OpRevoke
)

func (o Op) String() string {
	switch o {
	case OpInvite:
		return "invite"
	case OpRestore:
		return "restore"
	case OpRevoke:
		return "revoke"
	}
	return "unknown"
}

// Action is one computed membership change. Members needing no change
// produce no action.
type Action struct {
	Op    Op
	Email string
}

// Policy holds the configuration flags the reconciler honours.
type Policy struct {
	// UsersOnly revokes members that are absent from the directory
	// entirely. Without it, directory absence alone never revokes.
	UsersOnly bool
	// PreventSelfLock keeps both revoke rules away from the member the
	// sync session authenticated as.
	PreventSelfLock bool
}

// Reconcile computes the actions that converge the organisation membership
// toward the directory. It is a pure function of its inputs: no I/O, no
// dependence on prior cycles.
//
// Duplicate directory emails resolve last-entry-wins. Actions are ordered
// invites, then restores, then revokes, so that an interrupted execution has
// added members rather than removed them; within each group the order is
// alphabetical.
func Reconcile(users []directory.User, members []vaultwarden.Member, policy Policy) (actions []Action) {
	var eligible = NewSet[string]()
	var disabled = NewSet[string]()
	var known = NewSet[string]()
	for _, u := range users {
		known.Add(u.Email)
		if u.Disabled {
			disabled.Add(u.Email)
			eligible.Delete(u.Email)
		} else {
			eligible.Add(u.Email)
			disabled.Delete(u.Email)
		}
	}

	var memberByEmail = make(map[string]vaultwarden.Member, len(members))
	for _, m := range members {
		memberByEmail[m.Email] = m
	}

	var invites, restores []string
	var revokes = NewSet[string]()

	for _, email := range eligible.ToArray() {
		member, exists := memberByEmail[email]
		switch {
		case !exists:
			invites = append(invites, email)
		case member.Revoked():
			restores = append(restores, email)
		}
	}

	// Disabled in the directory trumps membership status, but never the
	// sync credential itself while PreventSelfLock holds.
	for _, email := range disabled.ToArray() {
		member, exists := memberByEmail[email]
		if !exists || member.Revoked() {
			continue
		}
		if member.IsSelf && policy.PreventSelfLock {
			continue
		}
		revokes.Add(email)
	}

	if policy.UsersOnly {
		for _, m := range members {
			if m.Revoked() || known.Has(m.Email) {
				continue
			}
			if m.IsSelf && policy.PreventSelfLock {
				continue
			}
			revokes.Add(m.Email)
		}
	}

	sort.Strings(invites)
	sort.Strings(restores)
	var revoked = revokes.ToArray()
	sort.Strings(revoked)

	for _, email := range invites {
		actions = append(actions, Action{Op: OpInvite, Email: email})
	}
	for _, email := range restores {
		actions = append(actions, Action{Op: OpRestore, Email: email})
	}
	for _, email := range revoked {
		actions = append(actions, Action{Op: OpRevoke, Email: email})
	}
	return
}
