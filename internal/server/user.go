package server

// User holds SSH credentials and optional sudo password for command execution.
type User struct {
	Name         string
	SSHKey       string
	Password     string
	SudoPassword string
}

// Override replaces connection settings of a server. Zero fields keep the
// current value.
type Override struct {
	User     string
	Port     int
	Password string
}

func (u User) apply(o Override) User {
	if o.User != "" && o.User != u.Name {
		u.Name = o.User
		u.SudoPassword = ""
	}
	if o.Password != "" {
		u.Password = o.Password
		u.SudoPassword = o.Password
	}
	return u
}
