package root

import (
	"strconv"
	"strings"

	"github.com/inercia/violet/pkg/config"
)

// credentialsFlag collects repeated --credentials values into a shared list,
// so that a following --quota applies to the right user.
type credentialsFlag struct {
	list *config.CredentialList
}

func (f *credentialsFlag) String() string {
	var users []string
	for _, c := range f.list.Items() {
		users = append(users, c.Username+":***")
	}
	return "[" + strings.Join(users, ",") + "]"
}

func (f *credentialsFlag) Set(s string) error {
	return f.list.Add(s)
}

func (f *credentialsFlag) Type() string { return "USER:PASSWORD" }

// quotaFlag sets the allocation quota of the last credentials given.
type quotaFlag struct {
	list *config.CredentialList
	last int
}

func (f *quotaFlag) String() string {
	return strconv.Itoa(f.last)
}

func (f *quotaFlag) Set(s string) error {
	quota, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	if err := f.list.SetQuota(quota); err != nil {
		return err
	}
	f.last = quota
	return nil
}

func (f *quotaFlag) Type() string { return "int" }
