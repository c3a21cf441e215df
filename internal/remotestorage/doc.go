// Package remotestorage exposes the save cache through the calling
// convention of a remote-storage file API: boolean results, byte counts and
// Unix timestamps, with -1/0/false standing in for every failure. Callers
// cannot distinguish "app not managed" from "file missing" — that collapse is
// part of the contract, and the true cause is only visible in the logs.
// Everything behind this boundary speaks typed errors.
package remotestorage
