// Package testsupport builds temp-dir configs and on-disk projects for tests.
package testsupport
