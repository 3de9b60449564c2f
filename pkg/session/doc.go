/*
Package session serialises work on a chat session.

Two requests on the same session id never interleave their transcript reads and writes:
the Manager holds a process-local lock per session and, when a DistributedLocker is
configured, a lock shared by every replica.
*/
package session
