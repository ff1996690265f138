package knot

// Logging convention in the `knot` package:
// Info:
//     essential events for abnormal behavior. This level should be silent on
//     normal operation, with the exception of one time (infrequent)
//     initialization data that is useful for monitoring
//     this includes:
//     - connect/reconnect outcomes and auth failures
//     - dropped or rejected sends
// Warning:
//     recovered panics and malformed frames, even when suppressed for
//     partial operation
// V(2):
//     key events for trace debugging
//     this includes:
//     - per-frame receive/send events with conversation and request ids
//       that can be used to filter
