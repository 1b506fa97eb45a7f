package navigation

import "fmt"

type Screen int

const (
	Login Screen = iota
	Choose
	Reserve
	Confirm
	Manage
)

var screenNames = [...]string{
	Login:   "login",
	Choose:  "choose",
	Reserve: "reserve",
	Confirm: "confirm",
	Manage:  "manage",
}

func (s Screen) String() string {
	if s < 0 || int(s) >= len(screenNames) {
		return fmt.Sprintf("screen(%d)", int(s))
	}
	return screenNames[s]
}

func (s Screen) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Screen) UnmarshalText(b []byte) error {
	v, err := ParseScreen(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ParseScreen maps a screen identifier back to its Screen.
func ParseScreen(name string) (Screen, error) {
	for i, n := range screenNames {
		if n == name {
			return Screen(i), nil
		}
	}
	return Login, fmt.Errorf("unknown screen %q", name)
}

// Controller tracks the single visible screen. Go accepts any target;
// deciding which transitions make sense is the caller's job.
type Controller struct {
	current  Screen
	previous Screen
}

func NewController() *Controller {
	return &Controller{current: Login, previous: Login}
}

func (c *Controller) Current() Screen {
	return c.current
}

func (c *Controller) Previous() Screen {
	return c.previous
}

func (c *Controller) Go(s Screen) {
	c.previous = c.current
	c.current = s
}
