package stream

import "sync"

// Scanner is the camera or image source whose preview the processor pauses
// on selection and resumes on reset.
type Scanner interface {
	Pause() error
	Resume() error
}

// scannerControl is the only path to the Scanner. It drops redundant
// commands so a resume issued while another resume is in flight, or while
// the scanner is already running, has no effect.
type scannerControl struct {
	mu       sync.Mutex
	scanner  Scanner
	paused   bool
	resuming bool
}

// pause reports whether a command was actually sent.
func (c *scannerControl) pause() (bool, error) {
	if c.scanner == nil {
		return false, nil
	}
	c.mu.Lock()
	if c.paused {
		c.mu.Unlock()
		return false, nil
	}
	c.paused = true
	c.mu.Unlock()

	if err := c.scanner.Pause(); err != nil {
		c.mu.Lock()
		c.paused = false
		c.mu.Unlock()
		return true, err
	}
	return true, nil
}

// resume reports whether a command was actually sent.
func (c *scannerControl) resume() (bool, error) {
	if c.scanner == nil {
		return false, nil
	}
	c.mu.Lock()
	if !c.paused || c.resuming {
		c.mu.Unlock()
		return false, nil
	}
	c.resuming = true
	c.mu.Unlock()

	err := c.scanner.Resume()

	c.mu.Lock()
	c.resuming = false
	if err == nil {
		c.paused = false
	}
	c.mu.Unlock()
	return true, err
}
