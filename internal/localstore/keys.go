package localstore

import "strings"

// Collection names used in key paths.
const (
	CollectionCart     = "cart"
	CollectionWishlist = "wishlist"
)

// Keys builds the namespaced key names shared by the session manager and the
// reconcilers. Names must stay stable across releases; stored data is found by them.
type Keys struct {
	Namespace string
}

// NewKeys returns the key builder for namespace.
func NewKeys(namespace string) Keys {
	return Keys{Namespace: strings.TrimSuffix(namespace, ":")}
}

// Guest is the single shared guest key for a collection, e.g. "shop:cart:guest".
func (k Keys) Guest(collection string) string {
	return k.Namespace + ":" + collection + ":guest"
}

// User is the per-user cache key for a collection, e.g. "shop:cart:user:42".
func (k Keys) User(collection, userID string) string {
	return k.Namespace + ":" + collection + ":user:" + userID
}

// Session holds the serialized session snapshot.
func (k Keys) Session() string {
	return k.Namespace + ":session"
}

// RememberMe holds the durable remember-me preference.
func (k Keys) RememberMe() string {
	return k.Namespace + ":remember-me"
}

// SignedOut holds the explicit sign-out flag.
func (k Keys) SignedOut() string {
	return k.Namespace + ":signed-out"
}

// Prefix is the common prefix of every key in the namespace.
func (k Keys) Prefix() string {
	return k.Namespace + ":"
}

// IsUserData reports whether key holds cart, wishlist or session data for
// this namespace. These are the keys wiped on explicit sign-out; the sign-out
// flag and the remember-me preference are not user data.
func (k Keys) IsUserData(key string) bool {
	rest, ok := strings.CutPrefix(key, k.Prefix())
	if !ok {
		return false
	}
	for _, p := range []string{CollectionCart + ":", CollectionWishlist + ":"} {
		if strings.HasPrefix(rest, p) {
			return true
		}
	}
	return rest == "session"
}
