// Copyright (c) 2019 Cisco and/or its affiliates.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at:
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmdimpl

import (
	"bytes"
	"io/ioutil"
	"net/http"
	"strings"
	"testing"
	"time"

	. "github.com/onsi/gomega"

	"github.com/contiv/orchagent/plugins/asicdb"
	"github.com/contiv/orchagent/plugins/statedb"
)

const intentsYAML = `
VNET_TABLE:
  Vnet_1:
    vxlan_tunnel: tunnel_1
    vni: 1111
VXLAN_TUNNEL_TABLE:
  tunnel_1:
    src_ip: 10.10.10.10
`

type fakeAgent struct {
	status  int
	body    string
	gets    []string
	posts   []string
	replies []string
}

func (a *fakeAgent) reply() *http.Response {
	body := a.body
	if len(a.replies) > 0 {
		body = a.replies[0]
		a.replies = a.replies[1:]
	}
	return &http.Response{
		StatusCode: a.status,
		Status:     http.StatusText(a.status),
		Body:       ioutil.NopCloser(strings.NewReader(body)),
	}
}

func (a *fakeAgent) Get(host string, cmd string) (*http.Response, error) {
	a.gets = append(a.gets, host+"/"+cmd)
	return a.reply(), nil
}

func (a *fakeAgent) Post(host string, cmd string, body string) (*http.Response, error) {
	a.posts = append(a.posts, host+"/"+cmd)
	return a.reply(), nil
}

func TestParseIntents(t *testing.T) {
	RegisterTestingT(t)

	intents, err := ParseIntents([]byte(intentsYAML))
	Expect(err).ToNot(HaveOccurred())
	Expect(intents["VNET_TABLE"]["Vnet_1"]).To(Equal(map[string]string{
		"vxlan_tunnel": "tunnel_1",
		"vni":          "1111",
	}))

	// tables are ordered by dependencies, not by file order
	ops := intents.Operations()
	Expect(ops).To(HaveLen(2))
	Expect(ops[0].Table).To(Equal("VXLAN_TUNNEL_TABLE"))
	Expect(ops[1].Table).To(Equal("VNET_TABLE"))
	Expect(ops[1].Op).To(Equal(statedb.OpSet))

	_, err = ParseIntents([]byte("FOO_TABLE:\n  a:\n    b: c\n"))
	Expect(err).To(HaveOccurred())
	_, err = ParseIntents([]byte("VNET_TABLE:\n  Vnet_1:\n    vni:\n      x: 1\n"))
	Expect(err).To(HaveOccurred())
	_, err = ParseIntents([]byte("VNET_TABLE:\n  Vnet_1: {}\n"))
	Expect(err).To(HaveOccurred())
	_, err = ParseIntents([]byte("VNET_TABLE: [\n"))
	Expect(err).To(HaveOccurred())
}

func TestApplyDeleteDump(t *testing.T) {
	RegisterTestingT(t)
	db := statedb.NewMemDB(statedb.IntentDBName)

	count, err := ApplyIntents(db, []byte(intentsYAML))
	Expect(err).ToNot(HaveOccurred())
	Expect(count).To(Equal(2))
	values, found, err := db.Get("VXLAN_TUNNEL_TABLE", "tunnel_1")
	Expect(err).ToNot(HaveOccurred())
	Expect(found).To(BeTrue())
	Expect(values.GetOr("src_ip", "")).To(Equal("10.10.10.10"))

	out := &bytes.Buffer{}
	Expect(DumpDB(out, db)).To(Succeed())
	Expect(out.String()).To(ContainSubstring("VNET_TABLE"))
	Expect(out.String()).To(ContainSubstring("10.10.10.10"))

	out.Reset()
	Expect(DumpDB(out, db, "VNET_TABLE")).To(Succeed())
	Expect(out.String()).ToNot(ContainSubstring("VXLAN_TUNNEL_TABLE"))

	out.Reset()
	Expect(DeleteIntent(out, db, "VNET_TABLE", "Vnet_1")).To(Succeed())
	Expect(out.String()).To(ContainSubstring("deleted"))
	_, found, _ = db.Get("VNET_TABLE", "Vnet_1")
	Expect(found).To(BeFalse())
	Expect(DeleteIntent(out, db, "VNET_TABLE", "Vnet_1")).ToNot(Succeed())

	db.SetUnavailable(true)
	_, err = ApplyIntents(db, []byte(intentsYAML))
	Expect(err).To(HaveOccurred())
}

func TestValidateDevice(t *testing.T) {
	RegisterTestingT(t)
	db := statedb.NewMemDB(statedb.DeviceDBName)
	vr := string(asicdb.FormatOID(asicdb.ObjectTypeVirtualRouter, 1))
	vrValues := statedb.NewFieldValues(
		asicdb.VirtualRouterAttrAdminV4State, asicdb.True,
		asicdb.VirtualRouterAttrAdminV6State, asicdb.True,
	)
	Expect(db.Set(asicdb.ObjectTypeVirtualRouter.Table(), vr, vrValues)).To(Succeed())

	out := &bytes.Buffer{}
	Expect(ValidateDevice(out, db)).To(Succeed())
	Expect(out.String()).To(ContainSubstring("valid"))

	Expect(db.Set(asicdb.ObjectTypeVirtualRouter.Table(), vr,
		vrValues.Clone().Set("SAI_VIRTUAL_ROUTER_ATTR_FOO", "bar"))).To(Succeed())
	out.Reset()
	Expect(ValidateDevice(out, db)).ToNot(Succeed())
	Expect(out.String()).To(ContainSubstring("SAI_VIRTUAL_ROUTER_ATTR_FOO"))
}

func TestIntentStates(t *testing.T) {
	RegisterTestingT(t)
	agent := &fakeAgent{
		status: http.StatusOK,
		body: `[{"Table":"VNET_TABLE","Key":"Vnet_1","State":"applied","Attempts":1},
			{"Table":"VNET_ROUTE_TABLE","Key":"Vnet_1:10.0.0.0/24","State":"pending","Attempts":3,
			 "LastError":"dependency not ready"}]`,
	}

	out := &bytes.Buffer{}
	Expect(PrintIntentStates(out, agent, "node1")).To(Succeed())
	Expect(agent.gets).To(Equal([]string{"node1/" + getIntentsCmd}))
	Expect(out.String()).To(ContainSubstring("pending"))
	Expect(out.String()).To(ContainSubstring("dependency not ready"))

	// still pending when the timeout expires
	Expect(WaitConverged(out, agent, "node1", -time.Second, time.Millisecond)).ToNot(Succeed())

	// converges on the second poll
	agent.replies = []string{agent.body, `[{"Table":"VNET_TABLE","Key":"Vnet_1","State":"applied"}]`}
	out.Reset()
	Expect(WaitConverged(out, agent, "node1", time.Minute, time.Millisecond)).To(Succeed())
	Expect(out.String()).To(ContainSubstring("converged (1 intent(s))"))

	// halted key fails the wait
	agent.body = `[{"Table":"VNET_TABLE","Key":"Vnet_1","State":"halted","LastError":"boom"}]`
	Expect(WaitConverged(out, agent, "node1", time.Minute, time.Millisecond)).ToNot(Succeed())

	agent.status = http.StatusInternalServerError
	Expect(PrintIntentStates(out, agent, "node1")).ToNot(Succeed())
}

func TestResync(t *testing.T) {
	RegisterTestingT(t)
	agent := &fakeAgent{status: http.StatusOK, body: `"ok"`}
	out := &bytes.Buffer{}
	Expect(Resync(out, agent, "node1")).To(Succeed())
	Expect(agent.posts).To(Equal([]string{"node1/" + resyncCmd}))

	agent.status = http.StatusServiceUnavailable
	Expect(Resync(out, agent, "node1")).ToNot(Succeed())
}
