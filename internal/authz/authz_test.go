package authz

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/informatics-isi-edu/hatrac/internal/cmn"
	"github.com/informatics-isi-edu/hatrac/internal/model"
)

var openFirewall = cmn.FirewallACLs{
	Create:     []string{"*"},
	Delete:     []string{"*"},
	ManageACLs: []string{"*"},
	ManageMeta: []string{"*"},
}

var _ = Describe("Engine.Check", func() {
	var engine *Engine

	BeforeEach(func() {
		engine = New(openFirewall)
	})

	Context("ownership", func() {
		It("grants every action to the resource's own owner", func() {
			chain := Chain{Own: model.ACL{"owner": {"alice"}}}
			for _, action := range []Action{ActionRead, ActionUpdate, ActionDelete, ActionManageACLs, ActionManageMeta} {
				Expect(engine.Check(action, chain, []string{"alice"})).To(Succeed())
			}
		})

		It("grants every action via an ancestor's subtree-owner", func() {
			chain := Chain{
				Own:       model.ACL{},
				Ancestors: []model.ACL{{"subtree-owner": {"bob"}}},
			}
			Expect(engine.Check(ActionDelete, chain, []string{"bob"})).To(Succeed())
		})
	})

	Context("read/write access", func() {
		It("grants read via the resource's own read list", func() {
			chain := Chain{Own: model.ACL{"read": {"carol"}}}
			Expect(engine.Check(ActionRead, chain, []string{"carol"})).To(Succeed())
		})

		It("grants update via the nearest ancestor's subtree-update list", func() {
			chain := Chain{
				Ancestors: []model.ACL{
					{"subtree-update": {"old"}},
					{"subtree-update": {"dave"}},
				},
			}
			Expect(engine.Check(ActionUpdate, chain, []string{"dave"})).To(Succeed())
		})

		It("denies read without a matching grant anywhere in the chain", func() {
			chain := Chain{Own: model.ACL{"read": {"carol"}}}
			err := engine.Check(ActionRead, chain, []string{"mallory"})
			Expect(err).To(HaveOccurred())
		})
	})

	Context("manage actions", func() {
		It("rejects manage_acls for a non-owner even with a matching resource ACL entry", func() {
			chain := Chain{Own: model.ACL{"manage_acls": {"carol"}}}
			err := engine.Check(ActionManageACLs, chain, []string{"carol"})
			Expect(err).To(HaveOccurred())
		})
	})

	Context("firewall gate", func() {
		It("blocks create outright when the firewall ACL excludes the caller", func() {
			restricted := New(cmn.FirewallACLs{Create: []string{"admin"}})
			chain := Chain{Own: model.ACL{"owner": {"alice"}}}
			err := restricted.Check(ActionCreate, chain, []string{"alice"})
			Expect(err).To(HaveOccurred())
		})

		It("allows create once the firewall ACL includes the caller and they own the parent", func() {
			restricted := New(cmn.FirewallACLs{Create: []string{"alice"}})
			chain := Chain{Ancestors: []model.ACL{{"subtree-owner": {"alice"}}}}
			Expect(restricted.Check(ActionCreate, chain, []string{"alice"})).To(Succeed())
		})
	})
})

var _ = Describe("CheckOwnerRemains", func() {
	It("rejects an empty owner list", func() {
		Expect(CheckOwnerRemains(nil)).To(HaveOccurred())
		Expect(CheckOwnerRemains([]string{})).To(HaveOccurred())
	})

	It("accepts a non-empty owner list", func() {
		Expect(CheckOwnerRemains([]string{"alice"})).To(Succeed())
	})
})
