// Package amee is a client for the AMEE carbon-accounting web API. It wraps
// the handful of REST endpoints needed to track the carbon footprint of
// measured activities:
//
//   - Session authentication (username/password exchanged for an authToken)
//   - Profile creation, listing and deletion
//   - Profile item creation (single and atomic batch) and CO2 readings
//   - Data item drilldowns, cached because drilldown results change rarely
//   - Response caching for read requests via a pluggable Cache backend
//     (sharded in-memory by default, memcached optionally)
//
// Design goals:
//   - Small surface area – functional options configure everything
//   - Safe concurrent use of a single *Client instance (token fetches are
//     coalesced so concurrent first requests authenticate once)
//   - Caching is an optimization, never a dependency: backend failures
//     silently degrade to a network call
//   - Pluggable cache, metrics and logging
//
// Typical usage:
//
//	client := amee.New(username, password,
//	    amee.WithCache(6*time.Hour),
//	    amee.WithMetrics(),
//	)
//
//	profile, err := client.CreateProfile(ctx)
//	item, err := profile.CreateItem(ctx, "/business/energy/electricity",
//	    amee.Choices{"country": "United Kingdom"},
//	    amee.Values{"energyPerTime": "1000"},
//	)
//	kg, err := item.CO2(ctx)
//
// Responses are decoded into a generic Document (map of string to value)
// because the remote schema is not contractually fixed; callers extract
// fields defensively or use Document.Decode to populate their own structs.
// Arbitrary endpoints not covered by the facades are reachable through
// Client.Do with a hand-built Request.
package amee
