// Package userauth keeps the two Kick accounts this service depends on
// continuously authorized.
//
// The streamer account (the broadcaster) is mandatory: its user access token is
// what authorizes channel management, chat, and webhook event subscriptions, so
// losing it disables the whole backend until a human re-authorizes. The bot
// account is optional, used only for automated chat, and must belong to a
// different Kick user than the streamer.
//
// Each account is authorized via an OAuth2 Authorization Code grant with PKCE.
// Operators who don't want to register their own Kick application can instead
// point the service at a webhook proxy: the proxy holds the OAuth client secret
// and injects the client credentials into authorize and token requests on our
// behalf. The proxy additionally issues a poll key to the streamer role, which is
// used elsewhere to retrieve queued webhook deliveries; here its presence or
// absence only serves as a role-consistency check on token responses.
//
// Once authorized, each identity's access token is renewed on a timer five
// minutes before it expires, indefinitely and unattended. The two renewal cycles
// are fully independent: the streamer's tokens keep renewing even if the bot was
// never configured or has lost its authorization.
package userauth
