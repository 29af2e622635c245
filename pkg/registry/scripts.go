package registry

import _ "embed"

// allocateScript atomically picks the lowest-scored member of the ranked set
// below maxClients and increments its score, so concurrent bots never race
// onto the same slot. Returns the chosen member, or a nil reply if none
// qualify.
//
// KEYS[1] = ranking sorted set (member=server URL, score=active clients)
// ARGV[1] = maxClients
//
//go:embed allocate.lua
var allocateScript string

// releaseScript decrements a server's score, floored at zero.
//
// KEYS[1] = ranking sorted set
// ARGV[1] = server URL
//
//go:embed release.lua
var releaseScript string

// failScript removes a server from the ranking outright (it's being treated
// as dead) and then re-runs the allocate logic in the same round trip.
//
// KEYS[1] = ranking sorted set
// ARGV[1] = failed server URL
// ARGV[2] = maxClients
//
//go:embed fail.lua
var failScript string
