//go:build largebot

package gateway

// identifyWindowLimit is the identify cap per 24 hours for large-bot
// tokens.
const identifyWindowLimit = 2000
