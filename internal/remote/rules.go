package remote

import (
	"github.com/tidwall/gjson"

	"github.com/sandeepkv93/remindd/internal/apperr"
)

// lookupFunc reads a document from the same view the batch is staged
// against, returning nil when it does not exist.
type lookupFunc func(Path) []byte

// authorize enforces the store's access rules for one op.
//
//	users/{uid}/tasks/{id}         owner writes; listed recipients may update
//	shared_tasks/{id}              created by its owner; owner or recipients update; owner deletes
//	sharing_index/{r}/shared_tasks owner or a current recipient writes; owner or r deletes
func authorize(actor string, op Op, existing []byte, lookup lookupFunc) error {
	const action = "authorize"
	if actor == "" {
		return apperr.New(apperr.KindPermission, action, "unauthenticated")
	}
	if err := op.Path.Validate(); err != nil {
		return apperr.Wrap(apperr.KindValidation, action, err)
	}
	deny := func() error {
		return apperr.Newf(apperr.KindPermission, action, "%s may not %s %s", actor, op.Kind, op.Path)
	}

	switch op.Path.Collection {
	case CollectionUsers:
		if actor == op.Path.Parent {
			return nil
		}
		if op.Kind != OpDelete && existing != nil && listed(existing, actor) {
			return nil
		}
		return deny()

	case CollectionSharedTasks:
		if existing == nil {
			if op.Kind == OpDelete || ownerOf(op.Data) == actor {
				return nil
			}
			return deny()
		}
		if ownerOf(existing) == actor {
			return nil
		}
		if op.Kind != OpDelete && listed(existing, actor) && ownerOf(op.Data) == ownerOf(existing) {
			return nil
		}
		return deny()

	case CollectionSharingIndex:
		if op.Kind == OpDelete {
			if existing == nil || actor == op.Path.Parent || ownerOf(existing) == actor {
				return nil
			}
			return deny()
		}
		owner := ownerOf(op.Data)
		if owner == "" {
			return deny()
		}
		if owner == actor {
			return nil
		}
		shared := lookup(SharedPath(op.Path.ID))
		if shared != nil && ownerOf(shared) == owner && listed(shared, actor) {
			return nil
		}
		return deny()
	}
	return deny()
}

func ownerOf(doc []byte) string {
	if doc == nil {
		return ""
	}
	return gjson.GetBytes(doc, "ownerId").String()
}

func listed(doc []byte, actor string) bool {
	for _, r := range gjson.GetBytes(doc, "sharedWith").Array() {
		if r.String() == actor {
			return true
		}
	}
	return false
}
