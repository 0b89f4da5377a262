package util

func ClipSlice[T any](s []T) []T {
	return s[:len(s):len(s)]
}
