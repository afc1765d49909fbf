// Package fileutil prepares and clears the directories owned by local
// database engines (root path, data directory, runtime directory).
package fileutil
