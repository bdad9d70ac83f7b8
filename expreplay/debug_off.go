//go:build !replaydebug

package expreplay

const debug = false
