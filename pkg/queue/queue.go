package queue

// Queue represents a basic bounded queue.
type Queue interface {
	Enqueue(item interface{}) error
	ReadAllMessages() ([]interface{}, error)
	Size() int
	ClearQueue()
}
