package plex

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// Account returns the plex.tv account that owns this server's token.
func (s *Server) Account(ctx context.Context) (*Account, error) {
	var acct Account
	if err := s.tv.GetJSON(ctx, "/api/v2/user", nil, &acct); err != nil {
		return nil, fmt.Errorf("plex: reading account for %s: %w", s.name, err)
	}

	return &acct, nil
}

// Friends lists the owner's plex.tv friends.
func (s *Server) Friends(ctx context.Context) ([]Friend, error) {
	var friends []Friend
	if err := s.tv.GetJSON(ctx, "/api/v2/friends", nil, &friends); err != nil {
		return nil, fmt.Errorf("plex: listing friends for %s: %w", s.name, err)
	}

	return friends, nil
}

// HomeUsers lists the members of the owner's Plex Home, including managed
// users without their own plex.tv login.
func (s *Server) HomeUsers(ctx context.Context) ([]HomeUser, error) {
	var resp homeUsersResponse
	if err := s.tv.GetJSON(ctx, "/api/home/users", nil, &resp); err != nil {
		return nil, fmt.Errorf("plex: listing home users for %s: %w", s.name, err)
	}

	return resp.Users, nil
}

// SharedServers lists the shares of this server, one per account with access.
func (s *Server) SharedServers(ctx context.Context) ([]SharedServer, error) {
	var resp sharedServersResponse

	path := "/api/servers/" + url.PathEscape(s.machineID) + "/shared_servers"
	if err := s.tv.GetJSON(ctx, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("plex: listing shares of %s: %w", s.name, err)
	}

	return resp.MediaContainer.SharedServers, nil
}

// SwitchUser returns a new handle to the same server acting as user. The
// token comes from the server's share list; Plex Home members without a
// share are switched through plex.tv and resolved via their resource list.
// The receiver is left untouched.
func (s *Server) SwitchUser(ctx context.Context, user string) (*Server, error) {
	token, err := s.shareToken(ctx, user)
	if err != nil {
		return nil, err
	}

	if token == "" {
		token, err = s.homeToken(ctx, user)
		if err != nil {
			return nil, err
		}
	}

	if token == "" {
		return nil, fmt.Errorf("plex: %q on %s: %w", user, s.name, ErrNoAccess)
	}

	s.logger.Debug("plex: switched user",
		slog.String("server", s.name),
		slog.String("user", user),
	)

	scoped := *s
	scoped.user = user
	scoped.api = s.api.WithAuthorizer(tokenAuthorizer(token, s.clientID))

	return &scoped, nil
}

// shareToken resolves user to a friend by title, username or email and
// returns the access token of that friend's share of this server. Shares
// are matched on the friend's account ID; shares without one fall back to
// the username or email. Returns "" when the user has no share.
func (s *Server) shareToken(ctx context.Context, user string) (string, error) {
	friends, err := s.Friends(ctx)
	if err != nil {
		return "", err
	}

	var friend *Friend

	for i := range friends {
		if friends[i].matches(user) {
			friend = &friends[i]
			break
		}
	}

	shares, err := s.SharedServers(ctx)
	if err != nil {
		return "", err
	}

	for _, sh := range shares {
		if friend != nil && sh.UserID != 0 {
			if sh.UserID == friend.ID {
				return sh.AccessToken, nil
			}

			continue
		}

		if shareNamed(sh, user) || (friend != nil && (shareNamed(sh, friend.Username) || shareNamed(sh, friend.Email))) {
			return sh.AccessToken, nil
		}
	}

	return "", nil
}

func shareNamed(sh SharedServer, name string) bool {
	return name != "" && (strings.EqualFold(sh.Username, name) || strings.EqualFold(sh.Email, name))
}

// homeToken switches to a Plex Home member and returns their access token
// for this server. Returns "" when user is not a home member.
func (s *Server) homeToken(ctx context.Context, user string) (string, error) {
	members, err := s.HomeUsers(ctx)
	if err != nil {
		return "", err
	}

	var member *HomeUser

	for i := range members {
		if strings.EqualFold(members[i].Title, user) || strings.EqualFold(members[i].Username, user) {
			member = &members[i]
			break
		}
	}

	if member == nil {
		return "", nil
	}

	var sw switchResponse

	path := "/api/v2/home/users/" + url.PathEscape(member.UUID) + "/switch"
	if err := s.tv.DoJSON(ctx, http.MethodPost, path, nil, nil, &sw); err != nil {
		return "", fmt.Errorf("plex: switching to home user %q: %w", user, err)
	}

	if sw.AuthToken == "" {
		return "", nil
	}

	memberTV := s.tv.WithAuthorizer(tokenAuthorizer(sw.AuthToken, s.clientID))

	var resources []resource
	if err := memberTV.GetJSON(ctx, "/api/v2/resources", url.Values{"includeHttps": {"1"}}, &resources); err != nil {
		return "", fmt.Errorf("plex: listing resources for home user %q: %w", user, err)
	}

	for _, r := range resources {
		if r.ClientIdentifier == s.machineID {
			return r.AccessToken, nil
		}
	}

	return "", nil
}
