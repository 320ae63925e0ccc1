package steam

import (
	"errors"
	"strconv"

	"github.com/spf13/afero"
)

// ErrNoUser is returned when loginusers.vdf names no usable account.
var ErrNoUser = errors.New("no steam user found")

// User is one account of loginusers.vdf.
type User struct {
	SteamID     string `json:"steam_id"`
	AccountName string `json:"account_name"`
	PersonaName string `json:"persona_name"`
	MostRecent  bool   `json:"most_recent"`
	Timestamp   int64  `json:"timestamp"`
}

// Users lists the accounts recorded in loginusers.vdf, in file order.
func Users(fs afero.Fs, layout Layout) ([]User, error) {
	root, err := readVDF(fs, layout.LoginUsers())
	if err != nil {
		return nil, err
	}

	block := root.Child("users")
	if block == nil {
		return nil, ErrNoUser
	}

	var users []User
	for _, entry := range block.Children {
		if !entry.IsBlock {
			continue
		}
		u := User{
			SteamID:     entry.Key,
			AccountName: entry.Get("AccountName"),
			PersonaName: entry.Get("PersonaName"),
			MostRecent:  entry.Get("MostRecent") == "1",
		}
		u.Timestamp, _ = strconv.ParseInt(entry.Get("Timestamp"), 10, 64)
		users = append(users, u)
	}
	return users, nil
}

// CurrentUser returns the MostRecent account with a persona name,
// otherwise the last account that has one.
func CurrentUser(fs afero.Fs, layout Layout) (*User, error) {
	users, err := Users(fs, layout)
	if err != nil {
		return nil, err
	}

	var last *User
	for i := range users {
		if users[i].PersonaName == "" {
			continue
		}
		if users[i].MostRecent {
			return &users[i], nil
		}
		last = &users[i]
	}
	if last == nil {
		return nil, ErrNoUser
	}
	return last, nil
}
