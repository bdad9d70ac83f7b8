//go:build replaydebug

package expreplay

// debug enables hot path validation in the SumTree. Build with
// -tags replaydebug to turn it on.
const debug = true
