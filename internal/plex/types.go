package plex

import "strings"

// Plex Media Server responses wrap their payload in a MediaContainer.

type identityResponse struct {
	MediaContainer struct {
		FriendlyName      string `json:"friendlyName"`
		MachineIdentifier string `json:"machineIdentifier"`
		Version           string `json:"version"`
	} `json:"MediaContainer"`
}

// Section is a library section (e.g. "Movies").
type Section struct {
	Key   string `json:"key"`
	Title string `json:"title"`
	Type  string `json:"type"` // "movie", "show", "artist", "photo"
}

type sectionsResponse struct {
	MediaContainer struct {
		Directory []Section `json:"Directory"`
	} `json:"MediaContainer"`
}

// GUID is one cross-reference identifier attached to an item, e.g.
// {"id": "tmdb://603"}. Requires includeGuids=1 on listing endpoints.
type GUID struct {
	ID string `json:"id"`
}

// Item is a library item as seen by the token that fetched it. ViewCount is
// per-account: the owner and each managed user see their own value.
type Item struct {
	RatingKey string `json:"ratingKey"`
	Title     string `json:"title"`
	Type      string `json:"type"`
	Year      int    `json:"year,omitempty"`
	GUIDs     []GUID `json:"Guid,omitempty"`
	ViewCount int    `json:"viewCount,omitempty"`
}

// Watched reports whether the fetching account has watched the item.
func (it *Item) Watched() bool {
	return it.ViewCount > 0
}

// GUIDStrings returns the item's GUID ids in API order.
func (it *Item) GUIDStrings() []string {
	out := make([]string, 0, len(it.GUIDs))
	for _, g := range it.GUIDs {
		out = append(out, g.ID)
	}

	return out
}

type metadataResponse struct {
	MediaContainer struct {
		Size      int    `json:"size"`
		TotalSize int    `json:"totalSize"`
		Metadata  []Item `json:"Metadata"`
	} `json:"MediaContainer"`
}

// plex.tv responses.

// Account is the plex.tv account that owns a server token.
type Account struct {
	ID       int64  `json:"id"`
	UUID     string `json:"uuid"`
	Username string `json:"username"`
	Title    string `json:"title"`
	Email    string `json:"email"`
}

// Friend is a plex.tv friend the owner shares libraries with. Title is the
// display name and may differ from Username.
type Friend struct {
	ID       int64  `json:"id"`
	UUID     string `json:"uuid"`
	Username string `json:"username"`
	Title    string `json:"title"`
	Email    string `json:"email"`
}

// matches reports whether name is the friend's title, username or email.
func (f *Friend) matches(name string) bool {
	return strings.EqualFold(f.Title, name) ||
		strings.EqualFold(f.Username, name) ||
		(f.Email != "" && strings.EqualFold(f.Email, name))
}

// HomeUser is a Plex Home member, including managed (restricted) users.
type HomeUser struct {
	ID        int64  `json:"id"`
	UUID      string `json:"uuid"`
	Username  string `json:"username"`
	Title     string `json:"title"`
	HomeAdmin bool   `json:"homeAdmin"`
	Protected bool   `json:"protected"`
}

type homeUsersResponse struct {
	Users []HomeUser `json:"users"`
}

// SharedServer is one share of this server with another account. AccessToken
// is that account's token for this server.
type SharedServer struct {
	ID          int64  `json:"id"`
	UserID      int64  `json:"userID"`
	Username    string `json:"username"`
	Email       string `json:"email"`
	AccessToken string `json:"accessToken"`
}

type sharedServersResponse struct {
	MediaContainer struct {
		SharedServers []SharedServer `json:"SharedServer"`
	} `json:"MediaContainer"`
}

type switchResponse struct {
	AuthToken string `json:"authToken"`
}

type resource struct {
	Name             string `json:"name"`
	ClientIdentifier string `json:"clientIdentifier"`
	Provides         string `json:"provides"`
	AccessToken      string `json:"accessToken"`
}
