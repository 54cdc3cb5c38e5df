package reconcile

import (
	"context"
	"log/slog"
)

// Users is the deduplicated set of display names visible across servers, in
// discovery order. Owner is the first owning account encountered.
type Users struct {
	Owner string
	Names []string
}

// Discovery is the result of user discovery: the servers that answered and
// the users they expose. Owners maps each server's machine ID to the name of
// the account that owns it, which is queried without impersonation.
type Discovery struct {
	Servers []MediaServer
	Users   Users
	Owners  map[string]string
}

// DiscoverUsers asks every server for its owner and managed accounts. A
// server that fails is logged and left out of the result. It returns
// ErrNoServers or ErrNoUsers when nothing usable remains.
func DiscoverUsers(ctx context.Context, servers []MediaServer, logger *slog.Logger) (*Discovery, error) {
	d := &Discovery{Owners: make(map[string]string, len(servers))}
	seen := make(map[string]bool)

	add := func(name string) {
		if name == "" || seen[name] {
			return
		}

		seen[name] = true
		d.Users.Names = append(d.Users.Names, name)
	}

	for _, srv := range servers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		owner, managed, err := srv.Accounts(ctx)
		if err != nil {
			logger.Warn("could not read accounts, excluding server",
				slog.String("server", srv.Name()),
				slog.String("error", err.Error()),
			)

			continue
		}

		if d.Users.Owner == "" {
			d.Users.Owner = owner
		}

		d.Owners[srv.MachineID()] = owner
		add(owner)

		for _, name := range managed {
			add(name)
		}

		d.Servers = append(d.Servers, srv)

		logger.Info("discovered server accounts",
			slog.String("server", srv.Name()),
			slog.String("owner", owner),
			slog.Int("managed", len(managed)),
		)
	}

	if len(d.Servers) == 0 {
		return nil, ErrNoServers
	}

	if len(d.Users.Names) == 0 {
		return nil, ErrNoUsers
	}

	return d, nil
}
