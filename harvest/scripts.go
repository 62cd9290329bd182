package harvest

// TargetAttr is the attribute MarkByTextScript sets on the element it found.
const TargetAttr = "data-hv-target"

// Page-side scripts. Each is a function expression evaluated through
// Session.Eval; fakes in tests switch on these constants.
const (
	scriptHeight = `() => document.body ? document.body.scrollHeight : 0`

	scriptScrollBottom = `() => { window.scrollTo(0, document.body.scrollHeight); return true; }`

	scriptBodyText = `() => document.body ? (document.body.textContent || '') : ''`

	// scriptQueryAll tags every match with data-hv-ref so later Children
	// calls can find it again. Lengths are in code points, like
	// utf8.RuneCountInString on the snapshot side, so emoji count once.
	// Text beyond maxText is cut but textLength always reports the full
	// length.
	scriptQueryAll = `(selector, rootRef, maxText) => {
		let root = document;
		if (rootRef) {
			root = document.querySelector('[data-hv-ref="' + rootRef + '"]');
			if (!root) return [];
		}
		window.__hvRefSeq = window.__hvRefSeq || 0;
		const out = [];
		for (const el of root.querySelectorAll(selector)) {
			let ref = el.getAttribute('data-hv-ref');
			if (!ref) {
				ref = String(++window.__hvRefSeq);
				el.setAttribute('data-hv-ref', ref);
			}
			const text = el.textContent || '';
			const chars = [...text];
			out.push({
				ref: ref,
				tag: el.tagName.toLowerCase(),
				class: el.getAttribute('class') || '',
				id: el.id || '',
				text: maxText > 0 && chars.length > maxText ? chars.slice(0, maxText).join('') : text,
				textLength: chars.length,
				datetime: el.getAttribute('datetime') || ''
			});
		}
		return out;
	}`

	// MarkByTextScript finds the innermost visible element whose text
	// contains label and tags it with TargetAttr. It returns the marker
	// value, or an empty string when nothing visible matches. Session
	// implementations use it to resolve ByText locators.
	MarkByTextScript = `(label) => {
		const visible = (el) => {
			const r = el.getBoundingClientRect();
			if (r.width === 0 || r.height === 0) return false;
			const s = window.getComputedStyle(el);
			return s.visibility !== 'hidden' && s.display !== 'none' && s.opacity !== '0';
		};
		const matches = [];
		for (const el of document.body.querySelectorAll('*')) {
			if (el.tagName === 'SCRIPT' || el.tagName === 'STYLE') continue;
			if (!(el.textContent || '').includes(label)) continue;
			let inner = false;
			for (const child of el.children) {
				if ((child.textContent || '').includes(label)) { inner = true; break; }
			}
			if (!inner) matches.push(el);
		}
		for (const el of matches) {
			if (!visible(el)) continue;
			window.__hvTargetSeq = (window.__hvTargetSeq || 0) + 1;
			const marker = String(window.__hvTargetSeq);
			el.setAttribute('data-hv-target', marker);
			return marker;
		}
		return '';
	}`

	scriptAnalyze = `(keywords, containers) => {
		const all = Array.from(document.querySelectorAll('*'));
		const info = {
			totalElements: all.length,
			textLength: document.body ? [...(document.body.textContent || '')].length : 0,
			readyState: document.readyState,
			title: document.title,
			preview: document.body ? (document.body.textContent || '').substring(0, 500) : '',
			keywords: [],
			containers: []
		};
		for (const kw of keywords) {
			const lower = kw.toLowerCase();
			const hits = all.filter(el => (el.textContent || '').toLowerCase().includes(lower));
			if (hits.length > 0) {
				info.keywords.push({
					keyword: kw,
					count: hits.length,
					samples: hits.slice(0, 3).map(el => ({
						tag: el.tagName.toLowerCase(),
						class: el.getAttribute('class') || '',
						text: (el.textContent || '').substring(0, 100)
					}))
				});
			}
		}
		for (const sel of containers) {
			try {
				const els = document.querySelectorAll(sel);
				if (els.length > 0) {
					info.containers.push({
						selector: sel,
						count: els.length,
						samples: Array.from(els).slice(0, 2).map(el => ({
							tag: el.tagName.toLowerCase(),
							class: el.getAttribute('class') || '',
							textLength: [...(el.textContent || '')].length
						}))
					});
				}
			} catch (e) {}
		}
		return info;
	}`

	scriptCollectImages = `() => {
		const scopes = [];
		for (const el of document.querySelectorAll('section, div')) {
			const label = [
				el.getAttribute('aria-label') || '',
				el.id || '',
				el.getAttribute('class') || '',
				(el.textContent || '').substring(0, 200)
			].join(' ').toLowerCase();
			if (label.includes('评论') || label.includes('comment')) scopes.push(el);
		}
		if (scopes.length === 0) scopes.push(document);

		const urls = [];
		const add = (u) => { if (u) urls.push(u); };
		for (const scope of scopes) {
			for (const img of scope.querySelectorAll('img')) {
				add(img.currentSrc);
				add(img.getAttribute('src'));
				add(img.getAttribute('data-src'));
				const srcset = img.getAttribute('srcset');
				if (srcset) add(srcset.split(',')[0].trim().split(' ')[0]);
			}
			for (const el of scope.querySelectorAll('*')) {
				const bg = window.getComputedStyle(el).backgroundImage;
				if (!bg || bg === 'none') continue;
				const m = bg.match(/url\(["']?(.*?)["']?\)/);
				if (m) add(m[1]);
			}
		}
		return urls;
	}`
)
