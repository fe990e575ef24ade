// Package xkcdbot answers Reddit comments that link an xkcd comic with the
// comic's title text.
//
// # Overview
//
// A Bot crawls Reddit threads one at a time. For every comment that links
// https://xkcd.com/<number>, it looks up the comic's title text on xkcd.com
// and posts a single reply containing it, together with a link to the comic's
// explanation. Answered comment ids are kept in a SQLite ledger, so a comment
// is never answered twice, even across restarts.
//
// # Quick Start
//
//	bot, err := xkcdbot.NewBot(ctx, &xkcdbot.Config{
//		ClientID:     "your-client-id",
//		ClientSecret: "your-client-secret",
//		Username:     "your-bot-account",
//		Password:     "your-bot-password",
//		UserAgent:    "script:xkcdbot:v1.0 (by /u/you)",
//		LedgerPath:   "xkcdbot.db",
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer bot.Close()
//
//	// One thread
//	err = bot.Crawl(ctx, "xkcd", "1abcde")
//
//	// Hot threads of every source, every five minutes
//	err = bot.Run(ctx, []types.Source{{Name: "xkcd", Limit: 25}}, 5*time.Minute)
//
// # Crawling
//
// A thread is fetched in two steps: first its top-level comments, then the
// full subtree of each one. Comments are visited in pre-order. Collapsed
// "load more" markers are collected into a work list and expanded through
// api/morechildren in batches of at most 100 ids, either once the list grows
// past a batch or when the thread ends.
//
// # Rate Limiting and Sessions
//
// Every Reddit call goes through one executor. It reads the X-Ratelimit-*
// headers of each response and, when the remaining allowance reaches zero,
// waits for the reset window plus a safety margin before issuing the next
// call. Transport failures are retried with exponential backoff. An expired
// session is refreshed once per call; if the credential exchange keeps
// failing, the returned error wraps errors.ErrSessionExhausted and Run stops.
//
// # Errors
//
// Errors are typed (see package pkg/errors). Problems confined to one comment
// or branch, such as a deleted parent or a missing comic, are logged and
// skipped. A ledger write failure stops the current thread, since a reply
// that cannot be recorded could otherwise be posted again.
//
// # Dry Run
//
// With Config.DryRun set, the bot crawls and composes replies but only logs
// them.
package xkcdbot
