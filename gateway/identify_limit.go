//go:build !largebot

package gateway

// identifyWindowLimit is the identify cap per 24 hours. Large-bot tokens
// get a higher cap; build with -tags largebot to use it.
const identifyWindowLimit = 1000
