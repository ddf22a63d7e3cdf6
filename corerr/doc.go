// Package corerr defines the error taxonomy shared across this module.
//
// It generalizes a fixed error-code-plus-message pair into a small set of
// Domain values that every package returns instead of ad-hoc errors, so
// that callers (the RPC
// layer in particular) can make a single decision ("retry", "fail the
// client", "log and move on") from the Domain alone without string
// matching on Msg.
package corerr
