package subkeeper

// Database is the interface implemented by the storage backends.
type Database interface {
	Open() error
	Close() error
}
