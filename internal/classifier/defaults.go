// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package classifier

// defaultDisposableDomains lists known disposable email providers.
// Addresses on these domains are ineligible for repository membership.
var defaultDisposableDomains = []string{
	"10minutemail.com",
	"20minutemail.com",
	"33mail.com",
	"dispostable.com",
	"fakeinbox.com",
	"getairmail.com",
	"getnada.com",
	"guerrillamail.com",
	"guerrillamail.net",
	"guerrillamail.org",
	"inboxbear.com",
	"mail-temp.com",
	"mailcatch.com",
	"maildrop.cc",
	"mailinator.com",
	"mailnesia.com",
	"mintemail.com",
	"mohmal.com",
	"mytrashmail.com",
	"sharklasers.com",
	"spam4.me",
	"spamgourmet.com",
	"temp-mail.org",
	"tempail.com",
	"tempinbox.com",
	"tempmail.dev",
	"tempmailaddress.com",
	"throwawaymail.com",
	"trashmail.com",
	"yopmail.com",
}

// defaultWebmailDomains lists known consumer and corporate webmail
// providers. These are eligible at the webmail trust score.
var defaultWebmailDomains = []string{
	"aol.com",
	"comcast.net",
	"fastmail.com",
	"gmail.com",
	"gmx.com",
	"gmx.de",
	"hotmail.co.uk",
	"hotmail.com",
	"icloud.com",
	"live.com",
	"mac.com",
	"mail.com",
	"me.com",
	"msn.com",
	"outlook.com",
	"protonmail.com",
	"proton.me",
	"qq.com",
	"web.de",
	"yahoo.co.uk",
	"yahoo.com",
	"yandex.com",
	"zoho.com",
}

// defaultRoleLocalParts lists exact local parts of role and system
// accounts that never enter a repository.
var defaultRoleLocalParts = []string{
	"abuse",
	"admin",
	"administrator",
	"alerts",
	"hostmaster",
	"mailer-daemon",
	"noc",
	"notification",
	"notifications",
	"postmaster",
	"root",
	"security",
	"spam",
	"webmaster",
}

// defaultRolePrefixes lists local-part prefixes that mark automated
// senders regardless of suffix.
var defaultRolePrefixes = []string{
	"bounce",
	"do-not-reply",
	"donotreply",
	"no-reply",
	"noreply",
}
