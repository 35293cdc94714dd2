// Package smscode delivers and verifies short-lived numeric codes over SMS.
//
// Each user has at most one outstanding code, held in a CodeStore (Redis,
// file or memory) with a TTL and a small attempt budget of its own. The
// comparison is constant-time and a verified or exhausted code is discarded,
// so a code can never be used twice.
//
//	store := smscode.NewInMemoryCodeStore()
//	service := smscode.NewSmsCodeService(store,
//		smscode.WithNotificationManager(notificationManager),
//	)
//
//	masked, err := service.Submit(ctx, userID, "+15551234567")
//	// later
//	outcome, err := service.Verify(ctx, userID, submittedCode)
package smscode
