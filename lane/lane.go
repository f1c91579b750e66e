// Package lane implements the bounded queue of cars waiting to cross from one
// side of the intersection.
package lane

import (
	"errors"
	"fmt"
	"sync"

	"crossroads/traffic"
)

var (
	// ErrClosed is returned by operations on, or blocked in, a closed lane.
	ErrClosed = errors.New("lane closed")
	// ErrOverflow is returned when more cars are pushed than the lane expects.
	ErrOverflow = errors.New("lane received more cars than expected")
	// ErrDrained is returned once every expected car has crossed and the
	// buffer has been released.
	ErrDrained = errors.New("lane drained")
)

// Lane is a fixed-capacity ring buffer of cars with blocking Push and Pop.
// One mutex guards all state; spaceFree wakes producers and carReady wakes
// consumers. It is meant for one arrival and one crossing goroutine, but the
// waits are loop-guarded and stay correct with more.
type Lane struct {
	direction traffic.Direction
	capacity  int
	inc       int

	mutex     sync.Mutex
	spaceFree *sync.Cond
	carReady  *sync.Cond

	buffer []traffic.Car
	head   int
	tail   int
	count  int

	arrived  int
	passed   int
	released bool
	closed   bool

	maxCount  int
	pushWaits int
	popWaits  int
}

// Stats is a point-in-time snapshot of a lane.
type Stats struct {
	Direction    traffic.Direction
	Capacity     int
	Occupancy    int
	MaxOccupancy int
	Inc          int
	Arrived      int
	Passed       int
	PushWaits    int // pushes that found the lane full
	PopWaits     int // pops that found the lane empty
	Released     bool
}

// New creates the lane for cars entering from direction. inc is the number
// of cars that will pass through it; a lane expecting no cars starts released.
func New(direction traffic.Direction, capacity, inc int) (*Lane, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("lane %s: capacity must be positive, got %d", direction, capacity)
	}
	if inc < 0 {
		return nil, fmt.Errorf("lane %s: expected car count must not be negative, got %d", direction, inc)
	}

	l := &Lane{
		direction: direction,
		capacity:  capacity,
		inc:       inc,
	}
	l.spaceFree = sync.NewCond(&l.mutex)
	l.carReady = sync.NewCond(&l.mutex)
	if inc == 0 {
		l.released = true
	} else {
		l.buffer = make([]traffic.Car, capacity)
	}
	return l, nil
}

// Direction is the entry side served by the lane.
func (l *Lane) Direction() traffic.Direction {
	return l.direction
}

// Inc is the number of cars the lane expects.
func (l *Lane) Inc() int {
	return l.inc
}

// Push appends car at the tail, blocking while the lane is full.
func (l *Lane) Push(car traffic.Car) error {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if err := l.usable(); err != nil {
		return err
	}
	if l.arrived == l.inc {
		return ErrOverflow
	}

	if l.count == l.capacity {
		l.pushWaits++
	}
	for l.count == l.capacity && !l.closed {
		l.spaceFree.Wait()
	}
	if l.closed {
		return ErrClosed
	}

	l.buffer[l.tail] = car
	l.tail = (l.tail + 1) % l.capacity
	l.count++
	l.arrived++
	l.maxCount = max(l.maxCount, l.count)

	l.carReady.Signal()
	return nil
}

// Pop removes the car at the head, blocking while the lane is empty. The
// buffer is released when the last expected car is popped.
func (l *Lane) Pop() (traffic.Car, error) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if err := l.usable(); err != nil {
		return traffic.Car{}, err
	}

	if l.count == 0 {
		l.popWaits++
	}
	for l.count == 0 && !l.closed {
		l.carReady.Wait()
	}
	if l.closed {
		return traffic.Car{}, ErrClosed
	}

	car := l.buffer[l.head]
	l.buffer[l.head] = traffic.Car{}
	l.head = (l.head + 1) % l.capacity
	l.count--
	l.passed++

	if l.passed == l.inc {
		l.buffer = nil
		l.released = true
	}

	l.spaceFree.Signal()
	return car, nil
}

// usable must be called with the mutex held.
func (l *Lane) usable() error {
	if l.closed {
		return ErrClosed
	}
	if l.released {
		return ErrDrained
	}
	return nil
}

// Close wakes every blocked Push and Pop; they and all later calls fail with
// ErrClosed. Closing twice is a no-op.
func (l *Lane) Close() {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if l.closed {
		return
	}
	l.closed = true
	l.spaceFree.Broadcast()
	l.carReady.Broadcast()
}

// Stats returns a snapshot of the lane.
func (l *Lane) Stats() Stats {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	return Stats{
		Direction:    l.direction,
		Capacity:     l.capacity,
		Occupancy:    l.count,
		MaxOccupancy: l.maxCount,
		Inc:          l.inc,
		Arrived:      l.arrived,
		Passed:       l.passed,
		PushWaits:    l.pushWaits,
		PopWaits:     l.popWaits,
		Released:     l.released,
	}
}
